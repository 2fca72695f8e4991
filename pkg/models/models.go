package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlanType is a membership tier with an associated price and duration.
type PlanType string

const (
	PlanMonthly    PlanType = "monthly"
	PlanQuarterly  PlanType = "quarterly"
	PlanSixMonthly PlanType = "six_monthly"
)

// PaymentStatus is the cached payment state of a member. It is derived
// from membership_end and the payment history, and may read stale until
// the next reconciliation pass.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusOverdue PaymentStatus = "overdue"
	PaymentStatusExpired PaymentStatus = "expired"
)

type MemberStatus string

const (
	MemberStatusActive   MemberStatus = "active"
	MemberStatusInactive MemberStatus = "inactive"
)

type PaymentMethod string

const (
	MethodCash       PaymentMethod = "cash"
	MethodUPI        PaymentMethod = "upi"
	MethodCard       PaymentMethod = "card"
	MethodNetBanking PaymentMethod = "net_banking"
	// Online gateway tags. The gateway protocols themselves are external
	// services; these only matter for earnings categorization.
	MethodRazorpay PaymentMethod = "razorpay"
	MethodPayU     PaymentMethod = "payu"
)

type Member struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	Email           string          `json:"email"`
	Phone           string          `json:"phone"`
	Address         string          `json:"address"`
	PlanType        PlanType        `json:"plan_type"`
	JoinDate        time.Time       `json:"join_date"`
	MembershipStart time.Time       `json:"membership_start"`
	MembershipEnd   time.Time       `json:"membership_end"` // authoritative expiry instant
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	MemberStatus    MemberStatus    `json:"member_status"`
	PlanFeeAmount   decimal.Decimal `json:"plan_fee_amount"`
	AdmissionFee    decimal.Decimal `json:"admission_fee_amount"` // one-time, monthly plan only
	TotalAmountDue  decimal.Decimal `json:"total_amount_due"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Payment is an append-only ledger record. Payments are never updated
// or deleted; membership state is always re-derivable from them.
type Payment struct {
	ID            uuid.UUID       `json:"id"`
	MemberID      uuid.UUID       `json:"member_id"`
	Amount        decimal.Decimal `json:"amount"`
	Method        PaymentMethod   `json:"method"`
	PaymentDate   time.Time       `json:"payment_date"`
	Description   string          `json:"description"`
	TransactionID string          `json:"transaction_id,omitempty"`
}

// MonthlyEarnings holds per-(year,month) revenue totals bucketed by
// payment-method category. Each payment is aggregated exactly once, at
// insertion time.
type MonthlyEarnings struct {
	Year          int             `json:"year"`
	Month         int             `json:"month"`
	TotalEarnings decimal.Decimal `json:"total_earnings"`
	CashAmount    decimal.Decimal `json:"cash_amount"`
	CashCount     int             `json:"cash_count"`
	UPIAmount     decimal.Decimal `json:"upi_amount"`
	UPICount      int             `json:"upi_count"`
	CardAmount    decimal.Decimal `json:"card_amount"`
	CardCount     int             `json:"card_count"`
	OnlineAmount  decimal.Decimal `json:"online_amount"`
	OnlineCount   int             `json:"online_count"`
}

// ReminderOrigin distinguishes scheduler-driven reminders from
// operator-triggered ones. Only scheduled entries participate in
// de-duplication; manual sends are always recorded.
type ReminderOrigin string

const (
	ReminderOriginScheduled ReminderOrigin = "scheduled"
	ReminderOriginManual    ReminderOrigin = "manual"
)

// ReminderLogEntry records that a reminder was sent to a member for a
// given expiry window on a given calendar day. The compound key
// (member, days, sent date, membership-end snapshot) is the durable
// de-duplication guard: if membership_end changes between scheduler
// firings the old entry no longer matches and a fresh reminder is
// permitted.
type ReminderLogEntry struct {
	ID               uuid.UUID      `json:"id"`
	MemberID         uuid.UUID      `json:"member_id"`
	DaysBeforeExpiry int            `json:"days_before_expiry"` // 7/3/1, or actual days for manual sends
	SentDate         string         `json:"sent_date"`          // YYYY-MM-DD, UTC
	SentAt           time.Time      `json:"sent_at"`
	MembershipEnd    time.Time      `json:"membership_end"` // snapshot at time of send
	Origin           ReminderOrigin `json:"origin"`
}
