package members

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/MarcoPoloResearchLab/gymdesk/internal/clock"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/payments"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingLedger   = errors.New("payment ledger is required")
	noOpLogger         = zap.NewNop()
)

const (
	opServiceNew = "members.service.new"
	opCreate     = "members.create"
	opGet        = "members.get"
	opList       = "members.list"
	opRenew      = "members.renew"
)

// ServiceError carries a stable "<operation>.<reason>" code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// PaymentRecorder appends ledger entries inside a caller-owned transaction.
type PaymentRecorder interface {
	AppendTx(tx *gorm.DB, entry payments.Entry) (payments.Transaction, error)
}

// ServiceConfig describes the dependencies required for member management.
type ServiceConfig struct {
	Database *gorm.DB
	Ledger   PaymentRecorder
	Logger   *zap.Logger
}

// Service manages members and records their membership payments.
type Service struct {
	db     *gorm.DB
	ledger PaymentRecorder
	logger *zap.Logger
	// createMu keeps sequence assignment single-file within the process.
	createMu sync.Mutex
}

// NewService validates the configuration.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Ledger == nil {
		return nil, newServiceError(opServiceNew, "missing_ledger", errMissingLedger)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, ledger: cfg.Ledger, logger: logger}, nil
}

// Create assigns the next sequential member id and records the join fee in one transaction.
func (s *Service) Create(ctx context.Context, input NewMember) (Member, error) {
	member, err := validateNewMember(input)
	if err != nil {
		return Member{}, newServiceError(opCreate, "invalid_input", err)
	}
	paidOn := strings.TrimSpace(input.PaidOn)
	if paidOn == "" {
		paidOn = member.StartDate
	}

	s.createMu.Lock()
	defer s.createMu.Unlock()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var highest int
		if err := tx.Model(&Member{}).Select("COALESCE(MAX(seq), 0)").Scan(&highest).Error; err != nil {
			return newServiceError(opCreate, "sequence_failed", err)
		}
		member.Seq = highest + 1
		member.MemberID = formatMemberID(member.Seq)
		if err := tx.Create(&member).Error; err != nil {
			return newServiceError(opCreate, "insert_failed", err)
		}
		if _, err := s.ledger.AppendTx(tx, payments.Entry{
			MemberID: member.MemberID,
			Amount:   member.Fees,
			Date:     paidOn,
			Type:     payments.TypeJoin,
			Notes:    "membership join",
		}); err != nil {
			return newServiceError(opCreate, "payment_failed", err)
		}
		return nil
	})
	if err != nil {
		s.logError(opCreate, "transaction_failed", err, zap.String("name", member.Name))
		return Member{}, err
	}
	s.logger.Info("member created",
		zap.String("member_id", member.MemberID),
		zap.String("end_date", member.EndDate))
	return member, nil
}

// Get loads one member by identifier.
func (s *Service) Get(ctx context.Context, memberID string) (Member, error) {
	memberID = NormalizeID(memberID)
	if memberID == "" {
		return Member{}, newServiceError(opGet, "missing_member_id", ErrMemberNotFound)
	}
	var member Member
	err := s.db.WithContext(ctx).Where("member_id = ?", memberID).Take(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Member{}, newServiceError(opGet, "not_found", fmt.Errorf("%w: %s", ErrMemberNotFound, memberID))
	}
	if err != nil {
		s.logError(opGet, "query_failed", err, zap.String("member_id", memberID))
		return Member{}, newServiceError(opGet, "query_failed", err)
	}
	return member, nil
}

// List returns all members ordered by sequence.
func (s *Service) List(ctx context.Context) ([]Member, error) {
	var members []Member
	if err := s.db.WithContext(ctx).Order("seq ASC").Find(&members).Error; err != nil {
		s.logError(opList, "query_failed", err)
		return nil, newServiceError(opList, "query_failed", err)
	}
	return members, nil
}

// Renew moves the member's end date forward and records a renewal payment.
func (s *Service) Renew(ctx context.Context, memberID string, renewal Renewal) (Member, error) {
	memberID = NormalizeID(memberID)
	endDate := strings.TrimSpace(renewal.EndDate)
	if _, err := clock.ParseDate(endDate); err != nil {
		return Member{}, newServiceError(opRenew, "invalid_end_date", fmt.Errorf("%w: %v", ErrInvalidRenewal, err))
	}
	paidOn := strings.TrimSpace(renewal.PaidOn)
	if _, err := clock.ParseDate(paidOn); err != nil {
		return Member{}, newServiceError(opRenew, "invalid_paid_on", fmt.Errorf("%w: %v", ErrInvalidRenewal, err))
	}
	if renewal.Amount.IsNegative() {
		return Member{}, newServiceError(opRenew, "invalid_amount", fmt.Errorf("%w: negative amount", ErrInvalidRenewal))
	}

	var member Member
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("member_id = ?", memberID).Take(&member).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opRenew, "not_found", fmt.Errorf("%w: %s", ErrMemberNotFound, memberID))
		}
		if err != nil {
			return newServiceError(opRenew, "query_failed", err)
		}
		if endDate <= member.EndDate {
			return newServiceError(opRenew, "not_extended",
				fmt.Errorf("%w: %s is not after %s", ErrInvalidRenewal, endDate, member.EndDate))
		}
		if err := tx.Model(&member).Update("end_date", endDate).Error; err != nil {
			return newServiceError(opRenew, "update_failed", err)
		}
		member.EndDate = endDate
		notes := strings.TrimSpace(renewal.Notes)
		if notes == "" {
			notes = "renewal until " + endDate
		}
		if _, err := s.ledger.AppendTx(tx, payments.Entry{
			MemberID: member.MemberID,
			Amount:   renewal.Amount,
			Date:     paidOn,
			Type:     payments.TypeRenewal,
			Notes:    notes,
		}); err != nil {
			return newServiceError(opRenew, "payment_failed", err)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrMemberNotFound) && !errors.Is(err, ErrInvalidRenewal) {
			s.logError(opRenew, "transaction_failed", err, zap.String("member_id", memberID))
		}
		return Member{}, err
	}
	s.logger.Info("member renewed",
		zap.String("member_id", member.MemberID),
		zap.String("end_date", member.EndDate))
	return member, nil
}

func validateNewMember(input NewMember) (Member, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Member{}, fmt.Errorf("%w: name is required", ErrInvalidMember)
	}
	start, err := clock.ParseDate(input.StartDate)
	if err != nil {
		return Member{}, fmt.Errorf("%w: start_date: %v", ErrInvalidMember, err)
	}
	end, err := clock.ParseDate(input.EndDate)
	if err != nil {
		return Member{}, fmt.Errorf("%w: end_date: %v", ErrInvalidMember, err)
	}
	if end.Before(start) {
		return Member{}, fmt.Errorf("%w: end_date precedes start_date", ErrInvalidMember)
	}
	if input.Fees.IsNegative() {
		return Member{}, fmt.Errorf("%w: fees must not be negative", ErrInvalidMember)
	}
	return Member{
		Name:      name,
		Phone:     strings.TrimSpace(input.Phone),
		Fees:      input.Fees.Round(2),
		StartDate: start.Format(clock.DateLayout),
		EndDate:   end.Format(clock.DateLayout),
	}, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("member service error", attrs...)
}
