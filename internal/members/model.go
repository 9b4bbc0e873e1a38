package members

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	memberIDPrefix = "M"
	memberIDFormat = memberIDPrefix + "%03d"
)

var (
	// ErrMemberNotFound indicates no member carries the identifier.
	ErrMemberNotFound = errors.New("members: member not found")
	// ErrInvalidMember indicates the member payload failed validation.
	ErrInvalidMember = errors.New("members: invalid member")
	// ErrInvalidRenewal indicates a renewal that does not extend the membership.
	ErrInvalidRenewal = errors.New("members: invalid renewal")
)

// Member is a gym member. Rows change only through admin actions.
type Member struct {
	MemberID  string          `gorm:"column:member_id;primaryKey;size:16;not null" json:"member_id"`
	Seq       int             `gorm:"column:seq;not null;uniqueIndex" json:"-"`
	Name      string          `gorm:"column:name;size:190;not null" json:"name"`
	Phone     string          `gorm:"column:phone;size:32;not null;default:''" json:"phone"`
	Fees      decimal.Decimal `gorm:"column:fees;type:decimal(12,2);not null" json:"fees"`
	StartDate string          `gorm:"column:start_date;size:10;not null" json:"start_date"`
	EndDate   string          `gorm:"column:end_date;size:10;not null;index" json:"end_date"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName exposes the table backing members.
func (Member) TableName() string {
	return "members"
}

// IsActiveOn reports whether the membership covers the YYYY-MM-DD date.
func (m Member) IsActiveOn(date string) bool {
	return m.EndDate >= date
}

// NormalizeID trims and upper-cases a scanned or typed member identifier.
func NormalizeID(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

func formatMemberID(seq int) string {
	return fmt.Sprintf(memberIDFormat, seq)
}

// NewMember is the admin input for Create.
type NewMember struct {
	Name      string
	Phone     string
	Fees      decimal.Decimal
	StartDate string
	EndDate   string
	// PaidOn dates the join payment.
	PaidOn string
}

// Renewal is the admin input for Renew.
type Renewal struct {
	EndDate string
	Amount  decimal.Decimal
	PaidOn  string
	Notes   string
}
