package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/gymdesk/internal/archive"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/attendance"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/auth"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/members"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/payments"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	adminSubjectContextKey = "gymdesk_admin_subject"
	apiTokenSubject        = "api-token"
	jsonContentType        = "application/json"
)

var (
	errMissingCheckInService    = errors.New("check-in service dependency required")
	errMissingAttendanceReader  = errors.New("attendance reader dependency required")
	errMissingMemberService     = errors.New("member service dependency required")
	errMissingPaymentLedger     = errors.New("payment ledger dependency required")
	errMissingSessionIssuer     = errors.New("session issuer dependency required")
	errMissingSessionValidator  = errors.New("session validator dependency required")
	errMissingCredentials       = errors.New("credential verifier dependency required")
	errMissingQRGenerator       = errors.New("qr generator dependency required")
	errMissingClock             = errors.New("clock dependency required")
	errArchiveNotConfigured     = errors.New("archive not configured")
	errRealtimeNotConfigured    = errors.New("realtime stream not configured")
	errUnsupportedContentType   = errors.New("content type must be application/json")
	errInvalidAuthorizationType = errors.New("authorization header must use the Bearer scheme")
)

type CheckInService interface {
	CheckIn(ctx context.Context, memberID string) (attendance.Result, error)
}

type AttendanceReader interface {
	ListDay(ctx context.Context, date string) ([]attendance.Record, error)
}

type MemberService interface {
	Create(ctx context.Context, input members.NewMember) (members.Member, error)
	Get(ctx context.Context, memberID string) (members.Member, error)
	List(ctx context.Context) ([]members.Member, error)
	Renew(ctx context.Context, memberID string, renewal members.Renewal) (members.Member, error)
}

type PaymentLedger interface {
	Record(ctx context.Context, entry payments.Entry) (payments.Transaction, error)
	List(ctx context.Context, from, to string) ([]payments.Transaction, error)
	ListForMember(ctx context.Context, memberID string) ([]payments.Transaction, error)
	Revenue(ctx context.Context, from, to string) (payments.RevenueReport, error)
}

type SessionIssuer interface {
	IssueSessionToken(ctx context.Context, username string) (string, time.Time, error)
}

type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
	CookieName() string
}

type CredentialVerifier interface {
	VerifyPassword(username, password string) error
	VerifyAPIToken(token string) bool
}

type QRGenerator interface {
	MemberPNG(memberID string) ([]byte, error)
	MasterPNG() ([]byte, error)
}

type Archiver interface {
	Upload(ctx context.Context, date, fileName, contentType string, body []byte) (archive.Object, error)
}

type Clock interface {
	Today() string
}

type Dependencies struct {
	CheckIn          CheckInService
	Attendance       AttendanceReader
	Members          MemberService
	Payments         PaymentLedger
	Sessions         SessionIssuer
	SessionValidator SessionValidator
	Credentials      CredentialVerifier
	QRCodes          QRGenerator
	Clock            Clock
	// Archiver and Realtime are optional; their routes answer 501 when unset.
	Archiver       Archiver
	Realtime       *RealtimeDispatcher
	AllowedOrigins []string
	SecureCookies  bool
	// HeartbeatInterval paces keep-alive events on the attendance stream.
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	switch {
	case deps.CheckIn == nil:
		return nil, errMissingCheckInService
	case deps.Attendance == nil:
		return nil, errMissingAttendanceReader
	case deps.Members == nil:
		return nil, errMissingMemberService
	case deps.Payments == nil:
		return nil, errMissingPaymentLedger
	case deps.Sessions == nil:
		return nil, errMissingSessionIssuer
	case deps.SessionValidator == nil:
		return nil, errMissingSessionValidator
	case deps.Credentials == nil:
		return nil, errMissingCredentials
	case deps.QRCodes == nil:
		return nil, errMissingQRGenerator
	case deps.Clock == nil:
		return nil, errMissingClock
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}

	router := gin.New()
	router.Use(requestLogger(logger))
	router.Use(recoveryMiddleware(logger))
	if len(deps.AllowedOrigins) > 0 {
		router.Use(corsMiddleware(deps.AllowedOrigins))
	}
	router.Use(requireJSONBody())

	handler := &httpHandler{
		checkIn:    deps.CheckIn,
		attendance: deps.Attendance,
		members:    deps.Members,
		payments:   deps.Payments,
		sessions:   deps.Sessions,
		validator:  deps.SessionValidator,
		creds:      deps.Credentials,
		qrcodes:    deps.QRCodes,
		clock:      deps.Clock,
		archiver:   deps.Archiver,
		realtime:   deps.Realtime,
		secure:     deps.SecureCookies,
		heartbeat:  heartbeat,
		logger:     logger,
	}

	router.GET("/health", handler.handleHealth)
	router.POST("/checkin", handler.handleCheckInPost)
	router.GET("/checkin", handler.handleCheckInQuery)
	router.GET("/checkin/:member_id", handler.handleCheckInPath)
	router.POST("/auth/login", handler.handleLogin)
	router.POST("/auth/logout", handler.handleLogout)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/auth/session", handler.handleSession)
	protected.GET("/members", handler.handleListMembers)
	protected.POST("/members", handler.handleCreateMember)
	protected.GET("/members/:member_id", handler.handleGetMember)
	protected.POST("/members/:member_id/renew", handler.handleRenewMember)
	protected.GET("/members/:member_id/payments", handler.handleMemberPayments)
	protected.GET("/members/:member_id/qr", handler.handleMemberQR)
	protected.GET("/qr/master", handler.handleMasterQR)
	protected.GET("/payments", handler.handleListPayments)
	protected.POST("/payments", handler.handleRecordPayment)
	protected.GET("/revenue", handler.handleRevenue)
	protected.GET("/attendance", handler.handleAttendanceDay)
	protected.GET("/attendance/export", handler.handleAttendanceExport)
	protected.POST("/attendance/archive", handler.handleAttendanceArchive)
	protected.GET("/attendance/stream", handler.handleAttendanceStream)

	return router, nil
}

type httpHandler struct {
	checkIn    CheckInService
	attendance AttendanceReader
	members    MemberService
	payments   PaymentLedger
	sessions   SessionIssuer
	validator  SessionValidator
	creds      CredentialVerifier
	qrcodes    QRGenerator
	clock      Clock
	archiver   Archiver
	realtime   *RealtimeDispatcher
	secure     bool
	heartbeat  time.Duration
	logger     *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// requireJSONBody rejects POST bodies that are not JSON. Empty bodies pass.
func requireJSONBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost || c.Request.ContentLength == 0 {
			c.Next()
			return
		}
		if c.ContentType() != jsonContentType {
			c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{"error": errUnsupportedContentType.Error()})
			return
		}
		c.Next()
	}
}

func recoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("http handler panic",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Any("panic", recovered))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	})
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(started)))
	}
}

// authorizeRequest admits either the automation bearer token or an admin session cookie.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	if header := c.GetHeader("Authorization"); header != "" {
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorizationType.Error()})
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if !h.creds.VerifyAPIToken(token) {
			h.logger.Warn("api token rejected", zap.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(adminSubjectContextKey, apiTokenSubject)
		c.Next()
		return
	}

	claims, err := h.validator.ValidateRequest(c.Request)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingSessionToken):
			h.logger.Debug("session missing", zap.String("path", c.Request.URL.Path))
		case errors.Is(err, auth.ErrExpiredSessionToken):
			h.logger.Info("session validation failed", zap.Error(err))
		default:
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(adminSubjectContextKey, claims.Subject)
	c.Next()
}

// dateParam reads ?<name>=YYYY-MM-DD, defaulting to today.
func (h *httpHandler) dateParam(c *gin.Context, name string) (string, bool) {
	value := strings.TrimSpace(c.Query(name))
	if value == "" {
		return h.clock.Today(), true
	}
	if !validDate(value) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_date"})
		return "", false
	}
	return value, true
}
