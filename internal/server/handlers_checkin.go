package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/gymdesk/internal/checkin"
	"github.com/gin-gonic/gin"
)

type checkInRequestPayload struct {
	MemberID string `json:"member_id"`
}

type checkInResponsePayload struct {
	Status   string `json:"status"`
	MemberID string `json:"member_id"`
	Date     string `json:"date"`
	InTime   string `json:"in_time"`
	OutTime  string `json:"out_time"`
	Name     string `json:"name,omitempty"`
}

// handleCheckInPost serves the desk scanner, which posts the decoded member id.
func (h *httpHandler) handleCheckInPost(c *gin.Context) {
	var request checkInRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	h.recordCheckIn(c, request.MemberID)
}

// handleCheckInQuery serves the master code flow, where the desk form submits ?member_id=.
func (h *httpHandler) handleCheckInQuery(c *gin.Context) {
	h.recordCheckIn(c, c.Query("member_id"))
}

// handleCheckInPath serves personal codes, which open /checkin/<member_id> directly.
func (h *httpHandler) handleCheckInPath(c *gin.Context) {
	h.recordCheckIn(c, c.Param("member_id"))
}

func (h *httpHandler) recordCheckIn(c *gin.Context, rawMemberID string) {
	result, err := h.checkIn.CheckIn(c.Request.Context(), rawMemberID)
	if err != nil {
		h.respondError(c, "checkin", err)
		return
	}
	c.JSON(http.StatusOK, checkInResponsePayload{
		Status:   string(result.Outcome),
		MemberID: result.Record.MemberID,
		Date:     result.Record.Date,
		InTime:   result.Record.InTime,
		OutTime:  result.Record.OutTime,
		Name:     result.Record.Name,
	})
}

var _ CheckInService = (*checkin.Service)(nil)
