package members

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/gymdesk/internal/payments"
	sqlite "github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type memberFixture struct {
	db      *gorm.DB
	ledger  *payments.Ledger
	service *Service
}

func newMemberFixture(t *testing.T) memberFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "members.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Member{}, &payments.Transaction{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	ledger, err := payments.NewLedger(payments.LedgerConfig{
		Database:   db,
		Clock:      func() time.Time { return time.Unix(1709280000, 0) },
		IDProvider: payments.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to build ledger: %v", err)
	}
	service, err := NewService(ServiceConfig{Database: db, Ledger: ledger})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return memberFixture{db: db, ledger: ledger, service: service}
}

func createMember(t *testing.T, service *Service, name string) Member {
	t.Helper()
	member, err := service.Create(context.Background(), NewMember{
		Name:      name,
		Phone:     "555-0100",
		Fees:      decimal.RequireFromString("1500"),
		StartDate: "2024-03-01",
		EndDate:   "2024-03-31",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	return member
}

func TestCreateAssignsSequentialIdentifiers(t *testing.T) {
	fixture := newMemberFixture(t)

	first := createMember(t, fixture.service, "Ana")
	second := createMember(t, fixture.service, "  Bo ")

	if first.MemberID != "M001" || second.MemberID != "M002" {
		t.Fatalf("unexpected identifiers %q and %q", first.MemberID, second.MemberID)
	}
	if second.Name != "Bo" {
		t.Fatalf("expected trimmed name, got %q", second.Name)
	}

	listed, err := fixture.service.List(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(listed) != 2 || listed[0].MemberID != "M001" || listed[1].MemberID != "M002" {
		t.Fatalf("unexpected list %#v", listed)
	}
}

func TestCreateRecordsJoinPayment(t *testing.T) {
	fixture := newMemberFixture(t)
	member := createMember(t, fixture.service, "Ana")

	history, err := fixture.ledger.ListForMember(context.Background(), member.MemberID)
	if err != nil {
		t.Fatalf("ledger list failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected one join payment, got %d", len(history))
	}
	if history[0].Type != payments.TypeJoin || history[0].Amount.StringFixed(2) != "1500.00" {
		t.Fatalf("unexpected join payment %#v", history[0])
	}
	if history[0].Date != "2024-03-01" {
		t.Fatalf("expected join payment dated at start date, got %q", history[0].Date)
	}
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	fixture := newMemberFixture(t)
	testCases := []struct {
		name  string
		input NewMember
	}{
		{name: "missing name", input: NewMember{StartDate: "2024-03-01", EndDate: "2024-03-31"}},
		{name: "bad start", input: NewMember{Name: "Ana", StartDate: "March", EndDate: "2024-03-31"}},
		{name: "end before start", input: NewMember{Name: "Ana", StartDate: "2024-03-31", EndDate: "2024-03-01"}},
		{name: "negative fees", input: NewMember{Name: "Ana", StartDate: "2024-03-01", EndDate: "2024-03-31", Fees: decimal.NewFromInt(-5)}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := fixture.service.Create(context.Background(), testCase.input)
			if !errors.Is(err, ErrInvalidMember) {
				t.Fatalf("expected invalid member error, got %v", err)
			}
		})
	}

	var count int64
	if err := fixture.db.Model(&Member{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no members persisted, got %d", count)
	}
}

func TestGetNormalizesIdentifier(t *testing.T) {
	fixture := newMemberFixture(t)
	createMember(t, fixture.service, "Ana")

	member, err := fixture.service.Get(context.Background(), " m001 ")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if member.Name != "Ana" {
		t.Fatalf("unexpected member %#v", member)
	}

	_, err = fixture.service.Get(context.Background(), "M404")
	if !errors.Is(err, ErrMemberNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "members.get.not_found" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestRenewExtendsMembershipAndRecordsPayment(t *testing.T) {
	fixture := newMemberFixture(t)
	ctx := context.Background()
	member := createMember(t, fixture.service, "Ana")
	if member.IsActiveOn("2024-04-15") {
		t.Fatalf("expected membership to lapse before renewal")
	}

	renewed, err := fixture.service.Renew(ctx, member.MemberID, Renewal{
		EndDate: "2024-04-30",
		Amount:  decimal.RequireFromString("1200"),
		PaidOn:  "2024-03-30",
	})
	if err != nil {
		t.Fatalf("renew failed: %v", err)
	}
	if renewed.EndDate != "2024-04-30" || !renewed.IsActiveOn("2024-04-15") {
		t.Fatalf("unexpected renewed member %#v", renewed)
	}

	stored, err := fixture.service.Get(ctx, member.MemberID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.EndDate != "2024-04-30" {
		t.Fatalf("expected persisted end date, got %q", stored.EndDate)
	}

	report, err := fixture.ledger.Revenue(ctx, "", "")
	if err != nil {
		t.Fatalf("revenue failed: %v", err)
	}
	if report.ByType[payments.TypeRenewal].StringFixed(2) != "1200.00" {
		t.Fatalf("unexpected renewal revenue %#v", report.ByType)
	}
	if report.Total.StringFixed(2) != "2700.00" {
		t.Fatalf("unexpected total %s", report.Total)
	}
}

func TestRenewRejectsShorterMembership(t *testing.T) {
	fixture := newMemberFixture(t)
	member := createMember(t, fixture.service, "Ana")

	_, err := fixture.service.Renew(context.Background(), member.MemberID, Renewal{
		EndDate: "2024-03-15",
		Amount:  decimal.NewFromInt(100),
		PaidOn:  "2024-03-10",
	})
	if !errors.Is(err, ErrInvalidRenewal) {
		t.Fatalf("expected invalid renewal, got %v", err)
	}

	_, err = fixture.service.Renew(context.Background(), "M999", Renewal{
		EndDate: "2024-05-01",
		PaidOn:  "2024-03-10",
	})
	if !errors.Is(err, ErrMemberNotFound) {
		t.Fatalf("expected member not found, got %v", err)
	}

	history, err := fixture.ledger.ListForMember(context.Background(), member.MemberID)
	if err != nil {
		t.Fatalf("ledger list failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected only the join payment, got %d", len(history))
	}
}

func TestIsActiveOnIncludesEndDate(t *testing.T) {
	member := Member{EndDate: "2024-03-31"}
	if !member.IsActiveOn("2024-03-31") {
		t.Fatalf("expected membership active on its end date")
	}
	if member.IsActiveOn("2024-04-01") {
		t.Fatalf("expected membership expired the day after")
	}
}
