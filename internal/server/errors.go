package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/gymdesk/internal/archive"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/attendance"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/checkin"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/clock"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/members"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/payments"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/rowstore"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type codedError interface {
	Code() string
}

type errorMapping struct {
	target error
	status int
	code   string
}

// errorMappings is ordered; the first match wins.
var errorMappings = []errorMapping{
	{target: checkin.ErrMissingMemberID, status: http.StatusBadRequest, code: "missing_member_id"},
	{target: checkin.ErrMemberNotEligible, status: http.StatusForbidden, code: "membership_expired"},
	{target: members.ErrMemberNotFound, status: http.StatusNotFound, code: "member_not_found"},
	{target: members.ErrInvalidMember, status: http.StatusBadRequest, code: "invalid_member"},
	{target: members.ErrInvalidRenewal, status: http.StatusBadRequest, code: "invalid_renewal"},
	{target: payments.ErrInvalidAmount, status: http.StatusBadRequest, code: "invalid_amount"},
	{target: payments.ErrInvalidType, status: http.StatusBadRequest, code: "invalid_payment_type"},
	{target: payments.ErrInvalidMemberID, status: http.StatusBadRequest, code: "missing_member_id"},
	{target: rowstore.ErrRecordNotFound, status: http.StatusConflict, code: "record_not_found"},
	{target: rowstore.ErrUnavailable, status: http.StatusServiceUnavailable, code: "store_unavailable"},
	{target: attendance.ErrLockUnavailable, status: http.StatusServiceUnavailable, code: "store_unavailable"},
	{target: archive.ErrUploadFailed, status: http.StatusBadGateway, code: "archive_failed"},
}

// respondError writes {"error": <http code>, "code": <service code>} and logs server faults.
func (h *httpHandler) respondError(c *gin.Context, operation string, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	for _, mapping := range errorMappings {
		if errors.Is(err, mapping.target) {
			status = mapping.status
			code = mapping.code
			break
		}
	}

	body := gin.H{"error": code}
	var coded codedError
	if errors.As(err, &coded) {
		body["code"] = coded.Code()
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("http request failed",
			zap.String("operation", operation),
			zap.String("reason", code),
			zap.Int("status", status),
			zap.Error(err))
	}
	c.JSON(status, body)
}

func validDate(value string) bool {
	_, err := clock.ParseDate(value)
	return err == nil
}

func validOptionalDate(value string) bool {
	return value == "" || validDate(value)
}

func formatExpiry(expiresAt time.Time) string {
	return expiresAt.UTC().Format(time.RFC3339)
}
