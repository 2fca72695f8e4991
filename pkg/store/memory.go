package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gymdesk/pkg/models"
)

// MemoryStore is an in-memory implementation of the Storage interface.
// It is used by tests and works as a throwaway backend for local runs.
// All methods are safe for concurrent use; the scheduler and request
// handlers share one instance.
type MemoryStore struct {
	mu        sync.Mutex
	members   map[uuid.UUID]*models.Member
	payments  []*models.Payment
	earnings  map[[2]int]*models.MonthlyEarnings
	reminders []*models.ReminderLogEntry
	settings  map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		members:  make(map[uuid.UUID]*models.Member),
		earnings: make(map[[2]int]*models.MonthlyEarnings),
		settings: make(map[string]string),
	}
}

func (m *MemoryStore) CreateMember(member *models.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *member
	m.members[member.ID] = &copied
	return nil
}

func (m *MemoryStore) GetMember(id uuid.UUID) (*models.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[id]
	if !ok {
		return nil, fmt.Errorf("member not found")
	}
	copied := *member
	return &copied, nil
}

func (m *MemoryStore) UpdateMember(member *models.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.members[member.ID]; !ok {
		return fmt.Errorf("member not found")
	}
	copied := *member
	m.members[member.ID] = &copied
	return nil
}

func (m *MemoryStore) DeleteMember(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.members[id]; !ok {
		return fmt.Errorf("member not found")
	}
	delete(m.members, id)
	return nil
}

func (m *MemoryStore) GetAllMembers() ([]*models.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	members := make([]*models.Member, 0, len(m.members))
	for _, member := range m.members {
		copied := *member
		members = append(members, &copied)
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].CreatedAt.After(members[j].CreatedAt)
	})
	return members, nil
}

func (m *MemoryStore) GetMembersExpiringBetween(start, end time.Time, statuses []models.PaymentStatus) ([]*models.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var members []*models.Member
	for _, member := range m.members {
		if member.MembershipEnd.Before(start) || member.MembershipEnd.After(end) {
			continue
		}
		for _, st := range statuses {
			if member.PaymentStatus == st {
				copied := *member
				members = append(members, &copied)
				break
			}
		}
	}
	return members, nil
}

func (m *MemoryStore) CreatePayment(payment *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *payment
	m.payments = append(m.payments, &copied)
	return nil
}

func (m *MemoryStore) GetPaymentsForMember(memberID uuid.UUID) ([]*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var payments []*models.Payment
	for _, payment := range m.payments {
		if payment.MemberID == memberID {
			copied := *payment
			payments = append(payments, &copied)
		}
	}
	sortPaymentsNewestFirst(payments)
	return payments, nil
}

func (m *MemoryStore) GetAllPayments() ([]*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payments := make([]*models.Payment, 0, len(m.payments))
	for _, payment := range m.payments {
		copied := *payment
		payments = append(payments, &copied)
	}
	sortPaymentsNewestFirst(payments)
	return payments, nil
}

func (m *MemoryStore) GetPaymentsSince(since time.Time) ([]*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var payments []*models.Payment
	for _, payment := range m.payments {
		if !payment.PaymentDate.Before(since) {
			copied := *payment
			payments = append(payments, &copied)
		}
	}
	sortPaymentsNewestFirst(payments)
	return payments, nil
}

func sortPaymentsNewestFirst(payments []*models.Payment) {
	sort.Slice(payments, func(i, j int) bool {
		return payments[i].PaymentDate.After(payments[j].PaymentDate)
	})
}

func (m *MemoryStore) AddEarnings(year, month int, category string, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]int{year, month}
	earnings, ok := m.earnings[key]
	if !ok {
		earnings = emptyEarnings(year, month)
		m.earnings[key] = earnings
	}
	earnings.TotalEarnings = earnings.TotalEarnings.Add(amount)
	switch category {
	case "cash":
		earnings.CashAmount = earnings.CashAmount.Add(amount)
		earnings.CashCount++
	case "upi":
		earnings.UPIAmount = earnings.UPIAmount.Add(amount)
		earnings.UPICount++
	case "card":
		earnings.CardAmount = earnings.CardAmount.Add(amount)
		earnings.CardCount++
	default:
		earnings.OnlineAmount = earnings.OnlineAmount.Add(amount)
		earnings.OnlineCount++
	}
	return nil
}

func (m *MemoryStore) GetMonthlyEarnings(year, month int) (*models.MonthlyEarnings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	earnings, ok := m.earnings[[2]int{year, month}]
	if !ok {
		return emptyEarnings(year, month), nil
	}
	copied := *earnings
	return &copied, nil
}

func (m *MemoryStore) LogReminder(entry *models.ReminderLogEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Only scheduled entries carry the dedup guard; manual entries with
	// the same key never block a scheduled append.
	for _, existing := range m.reminders {
		if existing.Origin != models.ReminderOriginScheduled {
			continue
		}
		if reminderKeyMatches(existing, entry.MemberID, entry.DaysBeforeExpiry, entry.SentDate, entry.MembershipEnd) {
			return false, nil
		}
	}
	copied := *entry
	copied.Origin = models.ReminderOriginScheduled
	m.reminders = append(m.reminders, &copied)
	return true, nil
}

func (m *MemoryStore) AppendReminder(entry *models.ReminderLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *entry
	if copied.Origin == "" {
		copied.Origin = models.ReminderOriginManual
	}
	m.reminders = append(m.reminders, &copied)
	return nil
}

func (m *MemoryStore) HasReminder(memberID uuid.UUID, daysBeforeExpiry int, sentDate string, membershipEnd time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.reminders {
		if reminderKeyMatches(existing, memberID, daysBeforeExpiry, sentDate, membershipEnd) {
			return true, nil
		}
	}
	return false, nil
}

func reminderKeyMatches(entry *models.ReminderLogEntry, memberID uuid.UUID, days int, sentDate string, membershipEnd time.Time) bool {
	return entry.MemberID == memberID &&
		entry.DaysBeforeExpiry == days &&
		entry.SentDate == sentDate &&
		entry.MembershipEnd.Equal(membershipEnd)
}

func (m *MemoryStore) GetReminderHistory(memberID *uuid.UUID) ([]*models.ReminderLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var entries []*models.ReminderLogEntry
	for _, entry := range m.reminders {
		if memberID != nil && entry.MemberID != *memberID {
			continue
		}
		copied := *entry
		entries = append(entries, &copied)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].SentAt.After(entries[j].SentAt)
	})
	return entries, nil
}

func (m *MemoryStore) GetSetting(name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings[name], nil
}

func (m *MemoryStore) PutSetting(name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[name] = value
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
