package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/gymdesk/internal/archive"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/attendance"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/auth"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/checkin"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/clock"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/database"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/members"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/payments"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/qrcode"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/rowstore"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	testSigningSecret = "test-signing-secret"
	testAPIToken      = "kiosk-token"
	testAdminPassword = "open-sesame"
)

type stubArchiver struct {
	uploads []archive.Object
	err     error
}

func (s *stubArchiver) Upload(_ context.Context, date, fileName, _ string, body []byte) (archive.Object, error) {
	if s.err != nil {
		return archive.Object{}, s.err
	}
	object := archive.Object{Bucket: "exports", Key: "attendance/" + date + "/" + fileName, Size: len(body)}
	s.uploads = append(s.uploads, object)
	return object, nil
}

// toggleStore fails every call while down is set.
type toggleStore struct {
	rowstore.Store
	down bool
}

func (s *toggleStore) ListRecords(ctx context.Context, scope rowstore.Scope) ([]rowstore.Record, error) {
	if s.down {
		return nil, rowstore.ErrUnavailable
	}
	return s.Store.ListRecords(ctx, scope)
}

type routerFixture struct {
	server   *httptest.Server
	handler  http.Handler
	members  *members.Service
	store    *toggleStore
	archiver *stubArchiver
	realtime *RealtimeDispatcher
}

type fixtureOptions struct {
	policy   checkin.Policy
	archiver bool
}

func newRouterFixture(t *testing.T, options fixtureOptions) routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "gymdesk.db")}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })

	fixedNow := func() time.Time { return time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC) }
	gymClock, err := clock.New("UTC", fixedNow)
	if err != nil {
		t.Fatalf("clock: %v", err)
	}

	ledger, err := payments.NewLedger(payments.LedgerConfig{Database: db, Clock: fixedNow, IDProvider: payments.NewUUIDProvider()})
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	memberService, err := members.NewService(members.ServiceConfig{Database: db, Ledger: ledger})
	if err != nil {
		t.Fatalf("members: %v", err)
	}

	memory, err := rowstore.NewMemoryStore(attendance.Layout)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	store := &toggleStore{Store: memory}
	reconciler, err := attendance.NewReconciler(attendance.ReconcilerConfig{Store: store, Partitioning: attendance.PartitionPerDay})
	if err != nil {
		t.Fatalf("reconciler: %v", err)
	}

	dispatcher := NewRealtimeDispatcher()
	policy := options.policy
	if policy == "" {
		policy = checkin.PolicyKnownMember
	}
	checkInService, err := checkin.NewService(checkin.ServiceConfig{
		Reconciler: reconciler,
		Members:    memberService,
		Clock:      gymClock,
		Policy:     policy,
		Publisher:  dispatcher,
	})
	if err != nil {
		t.Fatalf("checkin: %v", err)
	}

	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{SigningSecret: []byte(testSigningSecret), TokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		CookieName:    "gymdesk_session",
	})
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	passwordHash, err := auth.HashPassword(testAdminPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	generator, err := qrcode.NewGenerator(qrcode.GeneratorConfig{BaseURL: "https://desk.example.com"})
	if err != nil {
		t.Fatalf("qr: %v", err)
	}

	deps := Dependencies{
		CheckIn:          checkInService,
		Attendance:       reconciler,
		Members:          memberService,
		Payments:         ledger,
		Sessions:         issuer,
		SessionValidator: validator,
		Credentials: auth.NewCredentials(auth.CredentialsConfig{
			AdminUsername:     "frontdesk",
			AdminPasswordHash: passwordHash,
			APIToken:          testAPIToken,
		}),
		QRCodes:           generator,
		Clock:             gymClock,
		Realtime:          dispatcher,
		HeartbeatInterval: time.Hour,
	}
	var archiver *stubArchiver
	if options.archiver {
		archiver = &stubArchiver{}
		deps.Archiver = archiver
	}

	handler, err := NewHTTPHandler(deps)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return routerFixture{
		server:   server,
		handler:  handler,
		members:  memberService,
		store:    store,
		archiver: archiver,
		realtime: dispatcher,
	}
}

func (f routerFixture) createMember(t *testing.T, name, endDate string) members.Member {
	t.Helper()
	member, err := f.members.Create(context.Background(), members.NewMember{
		Name:      name,
		Fees:      decimal.NewFromInt(1500),
		StartDate: "2024-01-01",
		EndDate:   endDate,
	})
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	return member
}

func (f routerFixture) do(t *testing.T, method, path, body string, configure func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	if configure != nil {
		configure(request)
	}
	recorder := httptest.NewRecorder()
	f.handler.ServeHTTP(recorder, request)
	return recorder
}

func withBearer(request *http.Request) {
	request.Header.Set("Authorization", "Bearer "+testAPIToken)
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode %q: %v", recorder.Body.String(), err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	fixture := newRouterFixture(t, fixtureOptions{})
	recorder := fixture.do(t, http.MethodGet, "/health", "", nil)
	if recorder.Code != http.StatusOK || !strings.Contains(recorder.Body.String(), `"ok"`) {
		t.Fatalf("unexpected health response %d %s", recorder.Code, recorder.Body.String())
	}
}

func TestCheckInEndpointTogglesOutcomes(t *testing.T) {
	fixture := newRouterFixture(t, fixtureOptions{})
	member := fixture.createMember(t, "Ana", "2024-12-31")

	expected := []string{"entry", "exit", "already_complete", "already_complete"}
	for index, status := range expected {
		recorder := fixture.do(t, http.MethodPost, "/checkin", `{"member_id":"`+member.MemberID+`"}`, nil)
		if recorder.Code != http.StatusOK {
			t.Fatalf("scan %d: unexpected status %d %s", index+1, recorder.Code, recorder.Body.String())
		}
		var payload checkInResponsePayload
		decodeBody(t, recorder, &payload)
		if payload.Status != status || payload.MemberID != member.MemberID {
			t.Fatalf("scan %d: expected %s, got %#v", index+1, status, payload)
		}
	}
}

func TestCheckInEndpointVariants(t *testing.T) {
	fixture := newRouterFixture(t, fixtureOptions{})
	member := fixture.createMember(t, "Ana", "2024-12-31")

	recorder := fixture.do(t, http.MethodGet, "/checkin/"+strings.ToLower(member.MemberID), "", nil)
	if recorder.Code != http.StatusOK || !strings.Contains(recorder.Body.String(), `"entry"`) {
		t.Fatalf("unexpected path check-in %d %s", recorder.Code, recorder.Body.String())
	}
	recorder = fixture.do(t, http.MethodGet, "/checkin?member_id="+member.MemberID, "", nil)
	if recorder.Code != http.StatusOK || !strings.Contains(recorder.Body.String(), `"exit"`) {
		t.Fatalf("unexpected query check-in %d %s", recorder.Code, recorder.Body.String())
	}
	recorder = fixture.do(t, http.MethodGet, "/checkin", "", nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for master url without member, got %d", recorder.Code)
	}
}

func TestCheckInEndpointErrors(t *testing.T) {
	testCases := []struct {
		name    string
		policy  checkin.Policy
		body    string
		headers map[string]string
		down    bool
		status  int
		code    string
	}{
		{name: "empty member id", body: `{"member_id":"  "}`, status: http.StatusBadRequest, code: "missing_member_id"},
		{name: "malformed json", body: `{"member_id":`, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "unknown member", body: `{"member_id":"M404"}`, status: http.StatusNotFound, code: "member_not_found"},
		{name: "expired member", policy: checkin.PolicyActiveMembership, body: `{"member_id":"M002"}`, status: http.StatusForbidden, code: "membership_expired"},
		{name: "store down", body: `{"member_id":"M001"}`, down: true, status: http.StatusServiceUnavailable, code: "store_unavailable"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			fixture := newRouterFixture(t, fixtureOptions{policy: testCase.policy})
			fixture.createMember(t, "Active", "2024-12-31")
			fixture.createMember(t, "Lapsed", "2024-02-01")
			fixture.store.down = testCase.down

			recorder := fixture.do(t, http.MethodPost, "/checkin", testCase.body, nil)
			if recorder.Code != testCase.status {
				t.Fatalf("expected %d, got %d %s", testCase.status, recorder.Code, recorder.Body.String())
			}
			var payload map[string]interface{}
			decodeBody(t, recorder, &payload)
			if payload["error"] != testCase.code {
				t.Fatalf("expected error %q, got %#v", testCase.code, payload)
			}
		})
	}
}

func TestPostRequiresJSONContentType(t *testing.T) {
	fixture := newRouterFixture(t, fixtureOptions{})
	recorder := fixture.do(t, http.MethodPost, "/checkin", "member_id=M001", func(request *http.Request) {
		request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	})
	if recorder.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", recorder.Code)
	}
}

func TestAdminRoutesRequireAuthentication(t *testing.T) {
	fixture := newRouterFixture(t, fixtureOptions{})
	for _, path := range []string{"/members", "/attendance", "/revenue", "/qr/master", "/auth/session"} {
		recorder := fixture.do(t, http.MethodGet, path, "", nil)
		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, recorder.Code)
		}
	}
}

func TestLoginSessionCookieAuthorizesAdminRoutes(t *testing.T) {
	fixture := newRouterFixture(t, fixtureOptions{})

	rejected := fixture.do(t, http.MethodPost, "/auth/login", `{"username":"frontdesk","password":"wrong"}`, nil)
	if rejected.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", rejected.Code)
	}

	login := fixture.do(t, http.MethodPost, "/auth/login", `{"username":"frontdesk","password":"`+testAdminPassword+`"}`, nil)
	if login.Code != http.StatusOK {
		t.Fatalf("expected login success, got %d %s", login.Code, login.Body.String())
	}
	var sessionCookie *http.Cookie
	for _, cookie := range login.Result().Cookies() {
		if cookie.Name == "gymdesk_session" {
			sessionCookie = cookie
		}
	}
	if sessionCookie == nil || sessionCookie.Value == "" || !sessionCookie.HttpOnly {
		t.Fatalf("expected http-only session cookie, got %#v", login.Result().Cookies())
	}

	session := fixture.do(t, http.MethodGet, "/auth/session", "", func(request *http.Request) {
		request.AddCookie(sessionCookie)
	})
	if session.Code != http.StatusOK || !strings.Contains(session.Body.String(), "frontdesk") {
		t.Fatalf("unexpected session response %d %s", session.Code, session.Body.String())
	}

	logout := fixture.do(t, http.MethodPost, "/auth/logout", "", nil)
	if logout.Code != http.StatusNoContent {
		t.Fatalf("expected 204 on logout, got %d", logout.Code)
	}
	cleared := false
	for _, cookie := range logout.Result().Cookies() {
		if cookie.Name == "gymdesk_session" && cookie.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatalf("expected logout to clear the session cookie")
	}
}

func TestMemberLifecycleOverHTTP(t *testing.T) {
	fixture := newRouterFixture(t, fixtureOptions{})

	created := fixture.do(t, http.MethodPost, "/members",
		`{"name":"Ana","phone":"555-0100","fees":"1500.00","start_date":"2024-03-01","end_date":"2024-03-31"}`, withBearer)
	if created.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", created.Code, created.Body.String())
	}
	var member memberPayload
	decodeBody(t, created, &member)
	if member.MemberID != "M001" || !member.Active {
		t.Fatalf("unexpected created member %#v", member)
	}

	invalid := fixture.do(t, http.MethodPost, "/members", `{"name":"","start_date":"2024-03-01","end_date":"2024-03-31"}`, withBearer)
	if invalid.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid member, got %d", invalid.Code)
	}

	renewed := fixture.do(t, http.MethodPost, "/members/M001/renew", `{"end_date":"2024-04-30","amount":1200}`, withBearer)
	if renewed.Code != http.StatusOK || !strings.Contains(renewed.Body.String(), "2024-04-30") {
		t.Fatalf("unexpected renew response %d %s", renewed.Code, renewed.Body.String())
	}

	other := fixture.do(t, http.MethodPost, "/payments", `{"member_id":"m001","amount":"49.50","type":"other","notes":"towel"}`, withBearer)
	if other.Code != http.StatusCreated {
		t.Fatalf("expected 201 for payment, got %d %s", other.Code, other.Body.String())
	}
	badType := fixture.do(t, http.MethodPost, "/payments", `{"member_id":"M001","amount":"1","type":"refund"}`, withBearer)
	if badType.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown payment type, got %d", badType.Code)
	}

	history := fixture.do(t, http.MethodGet, "/members/M001/payments", "", withBearer)
	var historyPayload struct {
		Transactions []payments.Transaction `json:"transactions"`
	}
	decodeBody(t, history, &historyPayload)
	if len(historyPayload.Transactions) != 3 {
		t.Fatalf("expected join, renewal and other payments, got %d", len(historyPayload.Transactions))
	}

	revenue := fixture.do(t, http.MethodGet, "/revenue?from=2024-03-01&to=2024-03-31", "", withBearer)
	var report payments.RevenueReport
	decodeBody(t, revenue, &report)
	if report.Total.StringFixed(2) != "2749.50" {
		t.Fatalf("unexpected revenue total %s", report.Total.StringFixed(2))
	}
	if report.ByType[payments.TypeRenewal].StringFixed(2) != "1200.00" {
		t.Fatalf("unexpected renewal revenue %#v", report.ByType)
	}

	badRange := fixture.do(t, http.MethodGet, "/revenue?from=2024-04-01&to=2024-03-01", "", withBearer)
	if badRange.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for inverted range, got %d", badRange.Code)
	}

	missing := fixture.do(t, http.MethodGet, "/members/M404", "", withBearer)
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.Code)
	}
}

func TestQRCodeEndpointsServePNG(t *testing.T) {
	fixture := newRouterFixture(t, fixtureOptions{})
	member := fixture.createMember(t, "Ana", "2024-12-31")

	for _, path := range []string{"/members/" + member.MemberID + "/qr", "/qr/master"} {
		recorder := fixture.do(t, http.MethodGet, path, "", withBearer)
		if recorder.Code != http.StatusOK {
			t.Fatalf("%s: unexpected status %d", path, recorder.Code)
		}
		if recorder.Header().Get("Content-Type") != qrcode.ContentType {
			t.Fatalf("%s: unexpected content type %q", path, recorder.Header().Get("Content-Type"))
		}
		if _, err := png.Decode(bytes.NewReader(recorder.Body.Bytes())); err != nil {
			t.Fatalf("%s: invalid png: %v", path, err)
		}
	}

	missing := fixture.do(t, http.MethodGet, "/members/M404/qr", "", withBearer)
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown member qr, got %d", missing.Code)
	}
}

func TestAttendanceViewsAndExport(t *testing.T) {
	fixture := newRouterFixture(t, fixtureOptions{archiver: true})
	first := fixture.createMember(t, "Ana", "2024-12-31")
	second := fixture.createMember(t, "Bo", "2024-12-31")
	for _, memberID := range []string{first.MemberID, second.MemberID, first.MemberID} {
		if recorder := fixture.do(t, http.MethodPost, "/checkin", `{"member_id":"`+memberID+`"}`, nil); recorder.Code != http.StatusOK {
			t.Fatalf("check-in failed: %d", recorder.Code)
		}
	}

	day := fixture.do(t, http.MethodGet, "/attendance", "", withBearer)
	var dayPayload attendanceDayPayload
	decodeBody(t, day, &dayPayload)
	if dayPayload.Date != "2024-03-01" || dayPayload.Count != 2 || dayPayload.Open != 1 {
		t.Fatalf("unexpected attendance day %#v", dayPayload)
	}

	badDate := fixture.do(t, http.MethodGet, "/attendance?date=yesterday", "", withBearer)
	if badDate.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid date, got %d", badDate.Code)
	}

	export := fixture.do(t, http.MethodGet, "/attendance/export?date=2024-03-01", "", withBearer)
	if export.Code != http.StatusOK || export.Header().Get("Content-Type") != attendance.ExportContentType {
		t.Fatalf("unexpected export response %d %q", export.Code, export.Header().Get("Content-Type"))
	}
	if !strings.Contains(export.Header().Get("Content-Disposition"), "attendance-2024-03-01.xlsx") {
		t.Fatalf("unexpected disposition %q", export.Header().Get("Content-Disposition"))
	}
	workbook, err := excelize.OpenReader(bytes.NewReader(export.Body.Bytes()))
	if err != nil {
		t.Fatalf("invalid workbook: %v", err)
	}
	defer workbook.Close()
	rows, err := workbook.GetRows("Sheet1")
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus two rows, got %d", len(rows))
	}

	archived := fixture.do(t, http.MethodPost, "/attendance/archive?date=2024-03-01", "", withBearer)
	if archived.Code != http.StatusCreated {
		t.Fatalf("expected 201 for archive, got %d %s", archived.Code, archived.Body.String())
	}
	if len(fixture.archiver.uploads) != 1 || fixture.archiver.uploads[0].Key != "attendance/2024-03-01/attendance-2024-03-01.xlsx" {
		t.Fatalf("unexpected uploads %#v", fixture.archiver.uploads)
	}

	fixture.archiver.err = errors.Join(archive.ErrUploadFailed, errors.New("access denied"))
	failed := fixture.do(t, http.MethodPost, "/attendance/archive", "", withBearer)
	if failed.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 when upload fails, got %d", failed.Code)
	}
}

func TestAttendanceArchiveNotConfigured(t *testing.T) {
	fixture := newRouterFixture(t, fixtureOptions{})
	recorder := fixture.do(t, http.MethodPost, "/attendance/archive", "", withBearer)
	if recorder.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", recorder.Code)
	}
}

func TestAttendanceStreamEmitsCheckInEvents(t *testing.T) {
	fixture := newRouterFixture(t, fixtureOptions{})
	member := fixture.createMember(t, "Ana", "2024-12-31")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	streamRequest, err := http.NewRequestWithContext(ctx, http.MethodGet, fixture.server.URL+"/attendance/stream?date=2024-03-01", http.NoBody)
	if err != nil {
		t.Fatalf("failed to construct stream request: %v", err)
	}
	withBearer(streamRequest)
	streamResp, err := http.DefaultClient.Do(streamRequest)
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	t.Cleanup(func() {
		_ = streamResp.Body.Close()
	})
	if streamResp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected stream status: %d", streamResp.StatusCode)
	}
	streamReader := bufio.NewReader(streamResp.Body)

	if err := readUntil(streamReader, "event:"+realtimeEventHeartbeat, 2*time.Second); err != nil {
		t.Fatalf("expected initial heartbeat: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for fixture.realtime.subscriberCount("2024-03-01") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	checkInRequest, err := http.NewRequest(http.MethodPost, fixture.server.URL+"/checkin", strings.NewReader(`{"member_id":"`+member.MemberID+`"}`))
	if err != nil {
		t.Fatalf("failed to construct check-in request: %v", err)
	}
	checkInRequest.Header.Set("Content-Type", "application/json")
	checkInResp, err := http.DefaultClient.Do(checkInRequest)
	if err != nil {
		t.Fatalf("check-in request failed: %v", err)
	}
	_ = checkInResp.Body.Close()

	dataLine, err := readEvent(streamReader, "event:"+RealtimeEventCheckIn, 2*time.Second)
	if err != nil {
		t.Fatalf("expected check-in event: %v", err)
	}
	var event checkin.Event
	if err := json.Unmarshal([]byte(strings.TrimPrefix(dataLine, "data:")), &event); err != nil {
		t.Fatalf("failed to decode event %q: %v", dataLine, err)
	}
	if event.MemberID != member.MemberID || event.Outcome != attendance.OutcomeEntryMarked || event.Name != "Ana" {
		t.Fatalf("unexpected event %#v", event)
	}
}

func readUntil(reader *bufio.Reader, prefix string, timeout time.Duration) error {
	_, err := readEvent(reader, prefix, timeout)
	return err
}

// readEvent scans for an event line starting with prefix and returns the data line after it.
func readEvent(reader *bufio.Reader, prefix string, timeout time.Duration) (string, error) {
	type lineResult struct {
		data string
		err  error
	}
	results := make(chan lineResult, 1)
	go func() {
		matched := false
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				results <- lineResult{err: err}
				return
			}
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, prefix) {
				matched = true
				continue
			}
			if matched && strings.HasPrefix(line, "data:") {
				results <- lineResult{data: line}
				return
			}
		}
	}()
	select {
	case result := <-results:
		return result.data, result.err
	case <-time.After(timeout):
		return "", errors.New("timed out waiting for " + prefix)
	}
}

func TestNewHTTPHandlerRequiresDependencies(t *testing.T) {
	if _, err := NewHTTPHandler(Dependencies{}); !errors.Is(err, errMissingCheckInService) {
		t.Fatalf("expected missing check-in service error, got %v", err)
	}
}
