package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/gymdesk/internal/clock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

const (
	opLedgerNew = "payments.ledger.new"
	opAppend    = "payments.append"
	opList      = "payments.list"
	opRevenue   = "payments.revenue"
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

// IDProvider issues transaction identifiers.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// LedgerConfig describes the dependencies of a Ledger.
type LedgerConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Ledger appends and aggregates payment transactions.
type Ledger struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewLedger validates the configuration and applies defaults.
func NewLedger(cfg LedgerConfig) (*Ledger, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opLedgerNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opLedgerNew, "missing_id_provider", errMissingIDProvider)
	}
	clockFn := cfg.Clock
	if clockFn == nil {
		clockFn = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Ledger{db: cfg.Database, clock: clockFn, idProvider: cfg.IDProvider, logger: logger}, nil
}

// Record appends one transaction in its own database transaction.
func (l *Ledger) Record(ctx context.Context, entry Entry) (Transaction, error) {
	return l.AppendTx(l.db.WithContext(ctx), entry)
}

// AppendTx appends one transaction using the caller's database handle, so it can join a
// wider transaction such as member creation.
func (l *Ledger) AppendTx(tx *gorm.DB, entry Entry) (Transaction, error) {
	if err := entry.validate(); err != nil {
		return Transaction{}, newServiceError(opAppend, "invalid_entry", err)
	}
	if _, err := clock.ParseDate(entry.Date); err != nil {
		return Transaction{}, newServiceError(opAppend, "invalid_date", err)
	}
	transactionID, err := l.idProvider.NewID()
	if err != nil {
		l.logError(opAppend, "id_generation_failed", err, zap.String("member_id", entry.MemberID))
		return Transaction{}, newServiceError(opAppend, "id_generation_failed", err)
	}

	transaction := Transaction{
		TransactionID:     transactionID,
		MemberID:          strings.TrimSpace(entry.MemberID),
		Amount:            entry.Amount.Round(2),
		Date:              strings.TrimSpace(entry.Date),
		Type:              entry.Type,
		Notes:             strings.TrimSpace(entry.Notes),
		RecordedAtSeconds: l.clock().UTC().Unix(),
	}
	if err := tx.Create(&transaction).Error; err != nil {
		l.logError(opAppend, "insert_failed", err, zap.String("member_id", entry.MemberID))
		return Transaction{}, newServiceError(opAppend, "insert_failed", err)
	}
	l.logger.Info("payment recorded",
		zap.String("transaction_id", transaction.TransactionID),
		zap.String("member_id", transaction.MemberID),
		zap.String("type", string(transaction.Type)),
		zap.String("amount", transaction.Amount.StringFixed(2)))
	return transaction, nil
}

// List returns transactions dated within [from, to], oldest first. Empty bounds are open.
func (l *Ledger) List(ctx context.Context, from, to string) ([]Transaction, error) {
	query := l.db.WithContext(ctx).Model(&Transaction{})
	if from != "" {
		query = query.Where("date >= ?", from)
	}
	if to != "" {
		query = query.Where("date <= ?", to)
	}

	var transactions []Transaction
	if err := query.Order("date ASC, recorded_at_s ASC, transaction_id ASC").Find(&transactions).Error; err != nil {
		l.logError(opList, "query_failed", err, zap.String("from", from), zap.String("to", to))
		return nil, newServiceError(opList, "query_failed", err)
	}
	return transactions, nil
}

// ListForMember returns one member's transactions, oldest first.
func (l *Ledger) ListForMember(ctx context.Context, memberID string) ([]Transaction, error) {
	var transactions []Transaction
	if err := l.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("date ASC, recorded_at_s ASC, transaction_id ASC").
		Find(&transactions).Error; err != nil {
		l.logError(opList, "query_failed", err, zap.String("member_id", memberID))
		return nil, newServiceError(opList, "query_failed", err)
	}
	return transactions, nil
}

// Revenue sums the ledger over [from, to]. Figures come from immutable rows only.
func (l *Ledger) Revenue(ctx context.Context, from, to string) (RevenueReport, error) {
	transactions, err := l.List(ctx, from, to)
	if err != nil {
		return RevenueReport{}, newServiceError(opRevenue, "list_failed", err)
	}
	report := RevenueReport{
		From:   from,
		To:     to,
		Count:  len(transactions),
		Total:  decimal.Zero,
		ByType: make(map[Type]decimal.Decimal),
	}
	for _, transaction := range transactions {
		report.Total = report.Total.Add(transaction.Amount)
		subtotal, ok := report.ByType[transaction.Type]
		if !ok {
			subtotal = decimal.Zero
		}
		report.ByType[transaction.Type] = subtotal.Add(transaction.Amount)
	}
	return report, nil
}

func (l *Ledger) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	l.logger.Error("payments ledger error", attrs...)
}
