package server

import (
	"io"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/gymdesk/internal/attendance"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type attendanceDayPayload struct {
	Date    string              `json:"date"`
	Count   int                 `json:"count"`
	Open    int                 `json:"open"`
	Records []attendance.Record `json:"records"`
}

func (h *httpHandler) handleAttendanceDay(c *gin.Context) {
	date, ok := h.dateParam(c, "date")
	if !ok {
		return
	}
	records, err := h.attendance.ListDay(c.Request.Context(), date)
	if err != nil {
		h.respondError(c, "attendance.list", err)
		return
	}
	open := 0
	for _, record := range records {
		if record.Open() {
			open++
		}
	}
	c.JSON(http.StatusOK, attendanceDayPayload{Date: date, Count: len(records), Open: open, Records: records})
}

func (h *httpHandler) buildExport(c *gin.Context, date string) ([]byte, bool) {
	records, err := h.attendance.ListDay(c.Request.Context(), date)
	if err != nil {
		h.respondError(c, "attendance.export", err)
		return nil, false
	}
	workbook, err := attendance.BuildWorkbook(date, records)
	if err != nil {
		h.respondError(c, "attendance.export", err)
		return nil, false
	}
	return workbook, true
}

func (h *httpHandler) handleAttendanceExport(c *gin.Context) {
	date, ok := h.dateParam(c, "date")
	if !ok {
		return
	}
	workbook, ok := h.buildExport(c, date)
	if !ok {
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+attendance.ExportFileName(date)+`"`)
	c.Data(http.StatusOK, attendance.ExportContentType, workbook)
}

func (h *httpHandler) handleAttendanceArchive(c *gin.Context) {
	if h.archiver == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": errArchiveNotConfigured.Error()})
		return
	}
	date, ok := h.dateParam(c, "date")
	if !ok {
		return
	}
	workbook, ok := h.buildExport(c, date)
	if !ok {
		return
	}
	object, err := h.archiver.Upload(c.Request.Context(), date, attendance.ExportFileName(date), attendance.ExportContentType, workbook)
	if err != nil {
		h.respondError(c, "attendance.archive", err)
		return
	}
	c.JSON(http.StatusCreated, object)
}

// handleAttendanceStream pushes check-in events for one date as server-sent events.
func (h *httpHandler) handleAttendanceStream(c *gin.Context) {
	if h.realtime == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": errRealtimeNotConfigured.Error()})
		return
	}
	date, ok := h.dateParam(c, "date")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, date)
	defer cleanup()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	h.logger.Debug("attendance stream opened", zap.String("date", date))
	c.SSEvent(realtimeEventHeartbeat, gin.H{"source": realtimeSourceBackend, "date": date})
	c.Writer.Flush()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, open := <-stream:
			if !open {
				return false
			}
			c.SSEvent(message.EventType, message.CheckIn)
			return true
		case tick := <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"source": realtimeSourceBackend, "at": tick.UTC().Format(time.RFC3339)})
			return true
		}
	})
	h.logger.Debug("attendance stream closed", zap.String("date", date))
}
