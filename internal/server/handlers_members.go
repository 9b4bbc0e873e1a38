package server

import (
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/gymdesk/internal/members"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/payments"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/qrcode"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type memberPayload struct {
	members.Member
	Active bool `json:"active"`
}

type createMemberRequestPayload struct {
	Name      string          `json:"name"`
	Phone     string          `json:"phone"`
	Fees      decimal.Decimal `json:"fees"`
	StartDate string          `json:"start_date"`
	EndDate   string          `json:"end_date"`
	PaidOn    string          `json:"paid_on"`
}

type renewRequestPayload struct {
	EndDate string          `json:"end_date"`
	Amount  decimal.Decimal `json:"amount"`
	PaidOn  string          `json:"paid_on"`
	Notes   string          `json:"notes"`
}

type paymentRequestPayload struct {
	MemberID string          `json:"member_id"`
	Amount   decimal.Decimal `json:"amount"`
	Date     string          `json:"date"`
	Type     string          `json:"type"`
	Notes    string          `json:"notes"`
}

func (h *httpHandler) withActivity(member members.Member) memberPayload {
	return memberPayload{Member: member, Active: member.IsActiveOn(h.clock.Today())}
}

func (h *httpHandler) handleListMembers(c *gin.Context) {
	list, err := h.members.List(c.Request.Context())
	if err != nil {
		h.respondError(c, "members.list", err)
		return
	}
	response := make([]memberPayload, 0, len(list))
	for _, member := range list {
		response = append(response, h.withActivity(member))
	}
	c.JSON(http.StatusOK, gin.H{"members": response})
}

func (h *httpHandler) handleCreateMember(c *gin.Context) {
	var request createMemberRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	paidOn := strings.TrimSpace(request.PaidOn)
	if paidOn == "" {
		paidOn = h.clock.Today()
	}
	member, err := h.members.Create(c.Request.Context(), members.NewMember{
		Name:      request.Name,
		Phone:     request.Phone,
		Fees:      request.Fees,
		StartDate: request.StartDate,
		EndDate:   request.EndDate,
		PaidOn:    paidOn,
	})
	if err != nil {
		h.respondError(c, "members.create", err)
		return
	}
	c.JSON(http.StatusCreated, h.withActivity(member))
}

func (h *httpHandler) handleGetMember(c *gin.Context) {
	member, err := h.members.Get(c.Request.Context(), c.Param("member_id"))
	if err != nil {
		h.respondError(c, "members.get", err)
		return
	}
	c.JSON(http.StatusOK, h.withActivity(member))
}

func (h *httpHandler) handleRenewMember(c *gin.Context) {
	var request renewRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	paidOn := strings.TrimSpace(request.PaidOn)
	if paidOn == "" {
		paidOn = h.clock.Today()
	}
	member, err := h.members.Renew(c.Request.Context(), c.Param("member_id"), members.Renewal{
		EndDate: request.EndDate,
		Amount:  request.Amount,
		PaidOn:  paidOn,
		Notes:   request.Notes,
	})
	if err != nil {
		h.respondError(c, "members.renew", err)
		return
	}
	c.JSON(http.StatusOK, h.withActivity(member))
}

func (h *httpHandler) handleMemberPayments(c *gin.Context) {
	member, err := h.members.Get(c.Request.Context(), c.Param("member_id"))
	if err != nil {
		h.respondError(c, "members.payments", err)
		return
	}
	history, err := h.payments.ListForMember(c.Request.Context(), member.MemberID)
	if err != nil {
		h.respondError(c, "members.payments", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"member_id": member.MemberID, "transactions": history})
}

func (h *httpHandler) handleMemberQR(c *gin.Context) {
	member, err := h.members.Get(c.Request.Context(), c.Param("member_id"))
	if err != nil {
		h.respondError(c, "members.qr", err)
		return
	}
	image, err := h.qrcodes.MemberPNG(member.MemberID)
	if err != nil {
		h.respondError(c, "members.qr", err)
		return
	}
	c.Header("Content-Disposition", `inline; filename="`+member.MemberID+`.png"`)
	c.Data(http.StatusOK, qrcode.ContentType, image)
}

func (h *httpHandler) handleMasterQR(c *gin.Context) {
	image, err := h.qrcodes.MasterPNG()
	if err != nil {
		h.respondError(c, "qr.master", err)
		return
	}
	c.Header("Content-Disposition", `inline; filename="checkin.png"`)
	c.Data(http.StatusOK, qrcode.ContentType, image)
}

func (h *httpHandler) handleRecordPayment(c *gin.Context) {
	var request paymentRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	paymentType, err := payments.ParseType(request.Type)
	if err != nil {
		h.respondError(c, "payments.record", err)
		return
	}
	member, err := h.members.Get(c.Request.Context(), request.MemberID)
	if err != nil {
		h.respondError(c, "payments.record", err)
		return
	}
	date := strings.TrimSpace(request.Date)
	if date == "" {
		date = h.clock.Today()
	}
	if !validDate(date) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_date"})
		return
	}
	transaction, err := h.payments.Record(c.Request.Context(), payments.Entry{
		MemberID: member.MemberID,
		Amount:   request.Amount,
		Date:     date,
		Type:     paymentType,
		Notes:    request.Notes,
	})
	if err != nil {
		h.respondError(c, "payments.record", err)
		return
	}
	c.JSON(http.StatusCreated, transaction)
}

func (h *httpHandler) handleListPayments(c *gin.Context) {
	from, to, ok := rangeParams(c)
	if !ok {
		return
	}
	transactions, err := h.payments.List(c.Request.Context(), from, to)
	if err != nil {
		h.respondError(c, "payments.list", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"from": from, "to": to, "transactions": transactions})
}

func (h *httpHandler) handleRevenue(c *gin.Context) {
	from, to, ok := rangeParams(c)
	if !ok {
		return
	}
	report, err := h.payments.Revenue(c.Request.Context(), from, to)
	if err != nil {
		h.respondError(c, "payments.revenue", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// rangeParams reads optional ?from= and ?to= dates.
func rangeParams(c *gin.Context) (string, string, bool) {
	from := strings.TrimSpace(c.Query("from"))
	to := strings.TrimSpace(c.Query("to"))
	if !validOptionalDate(from) || !validOptionalDate(to) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_date"})
		return "", "", false
	}
	if from != "" && to != "" && from > to {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_range"})
		return "", "", false
	}
	return from, to, true
}
