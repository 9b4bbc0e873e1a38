package payments

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Type classifies a ledger entry.
type Type string

const (
	// TypeJoin records the fee paid when a member is created.
	TypeJoin Type = "join"
	// TypeRenewal records a membership extension.
	TypeRenewal Type = "renewal"
	// TypeOther records any other income, e.g. merchandise.
	TypeOther Type = "other"
)

var (
	// ErrInvalidType indicates an unsupported transaction type.
	ErrInvalidType = errors.New("payments: invalid transaction type")
	// ErrInvalidAmount indicates a negative amount.
	ErrInvalidAmount = errors.New("payments: invalid amount")
	// ErrInvalidMemberID indicates an empty member identifier.
	ErrInvalidMemberID = errors.New("payments: invalid member id")
)

// ParseType validates raw input and returns a Type.
func ParseType(value string) (Type, error) {
	switch Type(strings.ToLower(strings.TrimSpace(value))) {
	case TypeJoin:
		return TypeJoin, nil
	case TypeRenewal:
		return TypeRenewal, nil
	case TypeOther:
		return TypeOther, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidType, value)
	}
}

// Transaction is an immutable ledger row. Rows are appended, never updated or deleted.
type Transaction struct {
	TransactionID     string          `gorm:"column:transaction_id;primaryKey;size:64;not null" json:"transaction_id"`
	MemberID          string          `gorm:"column:member_id;size:16;not null;index" json:"member_id"`
	Amount            decimal.Decimal `gorm:"column:amount;type:decimal(12,2);not null" json:"amount"`
	Date              string          `gorm:"column:date;size:10;not null;index" json:"date"`
	Type              Type            `gorm:"column:type;size:16;not null" json:"type"`
	Notes             string          `gorm:"column:notes;type:text;not null;default:''" json:"notes"`
	RecordedAtSeconds int64           `gorm:"column:recorded_at_s;not null" json:"recorded_at_s"`
}

// TableName provides the explicit table binding for GORM.
func (Transaction) TableName() string {
	return "payment_transactions"
}

// Entry is the caller-supplied part of a transaction.
type Entry struct {
	MemberID string
	Amount   decimal.Decimal
	Date     string
	Type     Type
	Notes    string
}

func (e Entry) validate() error {
	if strings.TrimSpace(e.MemberID) == "" {
		return ErrInvalidMemberID
	}
	if e.Amount.IsNegative() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, e.Amount.String())
	}
	if _, err := ParseType(string(e.Type)); err != nil {
		return err
	}
	return nil
}

// RevenueReport aggregates ledger rows over a date range.
type RevenueReport struct {
	From   string                   `json:"from"`
	To     string                   `json:"to"`
	Count  int                      `json:"count"`
	Total  decimal.Decimal          `json:"total"`
	ByType map[Type]decimal.Decimal `json:"by_type"`
}
