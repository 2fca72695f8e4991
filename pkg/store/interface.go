package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gymdesk/pkg/models"
)

// Storage defines the interface for database operations related to
// members, payments, earnings, reminder logs and settings.
type Storage interface {
	CreateMember(member *models.Member) error
	GetMember(id uuid.UUID) (*models.Member, error)
	UpdateMember(member *models.Member) error
	DeleteMember(id uuid.UUID) error
	GetAllMembers() ([]*models.Member, error)
	// GetMembersExpiringBetween returns members whose membership_end falls
	// within [start, end] and whose cached payment status is one of the
	// given statuses.
	GetMembersExpiringBetween(start, end time.Time, statuses []models.PaymentStatus) ([]*models.Member, error)

	CreatePayment(payment *models.Payment) error
	GetPaymentsForMember(memberID uuid.UUID) ([]*models.Payment, error)
	GetAllPayments() ([]*models.Payment, error)
	GetPaymentsSince(since time.Time) ([]*models.Payment, error)

	// AddEarnings increments the (year,month) bucket for the given
	// category ("cash", "upi", "card" or "online") as one logical upsert.
	AddEarnings(year, month int, category string, amount decimal.Decimal) error
	GetMonthlyEarnings(year, month int) (*models.MonthlyEarnings, error)

	// LogReminder appends a scheduled reminder log entry if no scheduled
	// entry with the same (member, days, sent date, membership-end
	// snapshot) key exists. Returns false when a concurrent or earlier
	// append already claimed the key.
	LogReminder(entry *models.ReminderLogEntry) (bool, error)
	// AppendReminder appends a log entry unconditionally. Used for manual
	// sends, where every delivery must appear in the history.
	AppendReminder(entry *models.ReminderLogEntry) error
	HasReminder(memberID uuid.UUID, daysBeforeExpiry int, sentDate string, membershipEnd time.Time) (bool, error)
	GetReminderHistory(memberID *uuid.UUID) ([]*models.ReminderLogEntry, error)

	// Settings are JSON blobs keyed by name; typed wrappers live in
	// pkg/rates. GetSetting returns "" when the name is absent.
	GetSetting(name string) (string, error)
	PutSetting(name, value string) error

	Close() error
}
