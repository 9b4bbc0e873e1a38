package checkin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/gymdesk/internal/attendance"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/clock"
	"github.com/MarcoPoloResearchLab/gymdesk/internal/members"
	"go.uber.org/zap"
)

var (
	// ErrMissingMemberID indicates an empty scan.
	ErrMissingMemberID = errors.New("checkin: member id is required")
	// ErrMemberNotEligible indicates the membership has lapsed.
	ErrMemberNotEligible = errors.New("checkin: membership expired")

	errMissingReconciler = errors.New("reconciler is required")
	errMissingClock      = errors.New("clock is required")
	errMissingDirectory  = errors.New("member directory is required by policy")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew = "checkin.service.new"
	opCheckIn    = "checkin.scan"
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

// Reconciler records one scan in the attendance store.
type Reconciler interface {
	Reconcile(ctx context.Context, checkIn attendance.CheckIn) (attendance.Result, error)
}

// MemberDirectory resolves members by identifier.
type MemberDirectory interface {
	Get(ctx context.Context, memberID string) (members.Member, error)
}

// Clock supplies the current instant in the gym's timezone.
type Clock interface {
	Now() time.Time
}

// Event describes a recorded scan for live dashboards.
type Event struct {
	Date     string             `json:"date"`
	MemberID string             `json:"member_id"`
	Outcome  attendance.Outcome `json:"outcome"`
	Time     string             `json:"time"`
	Name     string             `json:"name,omitempty"`
}

// EventPublisher receives an Event after every successful scan.
type EventPublisher interface {
	PublishCheckIn(event Event)
}

// ServiceConfig describes the dependencies of a check-in Service.
type ServiceConfig struct {
	Reconciler Reconciler
	Members    MemberDirectory
	Clock      Clock
	Policy     Policy
	Publisher  EventPublisher
	Logger     *zap.Logger
}

// Service is the public scan entry point. It applies the eligibility policy, stamps the
// local date and time, and hands the scan to the reconciler.
type Service struct {
	reconciler Reconciler
	members    MemberDirectory
	clock      Clock
	policy     Policy
	publisher  EventPublisher
	logger     *zap.Logger
}

// NewService validates the configuration.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Reconciler == nil {
		return nil, newServiceError(opServiceNew, "missing_reconciler", errMissingReconciler)
	}
	if cfg.Clock == nil {
		return nil, newServiceError(opServiceNew, "missing_clock", errMissingClock)
	}
	policy, err := ParsePolicy(string(cfg.Policy))
	if err != nil {
		return nil, newServiceError(opServiceNew, "invalid_policy", err)
	}
	if policy.requiresMember() && cfg.Members == nil {
		return nil, newServiceError(opServiceNew, "missing_directory", errMissingDirectory)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		reconciler: cfg.Reconciler,
		members:    cfg.Members,
		clock:      cfg.Clock,
		policy:     policy,
		publisher:  cfg.Publisher,
		logger:     logger,
	}, nil
}

// Policy reports the active eligibility policy.
func (s *Service) Policy() Policy {
	return s.policy
}

// CheckIn records a scan of rawMemberID at the current local time.
func (s *Service) CheckIn(ctx context.Context, rawMemberID string) (attendance.Result, error) {
	memberID := members.NormalizeID(rawMemberID)
	if memberID == "" {
		return attendance.Result{}, newServiceError(opCheckIn, "missing_member_id", ErrMissingMemberID)
	}
	scannedAt := s.clock.Now()
	today := scannedAt.Format(clock.DateLayout)
	now := scannedAt.Format(clock.TimeLayout)

	name, err := s.resolveName(ctx, memberID, today)
	if err != nil {
		return attendance.Result{}, err
	}

	result, err := s.reconciler.Reconcile(ctx, attendance.CheckIn{
		MemberID: memberID,
		Date:     today,
		Time:     now,
		Name:     name,
	})
	if err != nil {
		return attendance.Result{}, err
	}

	if s.publisher != nil {
		s.publisher.PublishCheckIn(Event{
			Date:     today,
			MemberID: memberID,
			Outcome:  result.Outcome,
			Time:     now,
			Name:     result.Record.Name,
		})
	}
	return result, nil
}

func (s *Service) resolveName(ctx context.Context, memberID, today string) (string, error) {
	if s.members == nil {
		return "", nil
	}
	member, err := s.members.Get(ctx, memberID)
	switch {
	case err == nil:
	case errors.Is(err, members.ErrMemberNotFound) && !s.policy.requiresMember():
		return "", nil
	case errors.Is(err, members.ErrMemberNotFound):
		s.logger.Info("check-in rejected",
			zap.String("member_id", memberID),
			zap.String("reason", "unknown_member"))
		return "", newServiceError(opCheckIn, "unknown_member", err)
	case !s.policy.requiresMember():
		s.logger.Warn("member lookup failed, recording scan without name",
			zap.String("member_id", memberID),
			zap.Error(err))
		return "", nil
	default:
		s.logger.Error("check-in member lookup failed",
			zap.String("operation", opCheckIn),
			zap.String("reason", "lookup_failed"),
			zap.String("member_id", memberID),
			zap.Error(err))
		return "", newServiceError(opCheckIn, "lookup_failed", err)
	}

	if s.policy == PolicyActiveMembership && !member.IsActiveOn(today) {
		s.logger.Info("check-in rejected",
			zap.String("member_id", memberID),
			zap.String("reason", "membership_expired"),
			zap.String("end_date", member.EndDate))
		return "", newServiceError(opCheckIn, "membership_expired",
			fmt.Errorf("%w: %s ended %s", ErrMemberNotEligible, memberID, member.EndDate))
	}
	return member.Name, nil
}
