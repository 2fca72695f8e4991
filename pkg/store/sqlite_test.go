package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gymdesk/pkg/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "gymdesk_test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testMember(membershipEnd time.Time, status models.PaymentStatus) *models.Member {
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	return &models.Member{
		ID:              uuid.New(),
		Name:            "Store Member",
		Email:           "store@example.com",
		Phone:           "9876543210",
		Address:         "12 Gym Street",
		PlanType:        models.PlanMonthly,
		JoinDate:        now,
		MembershipStart: now,
		MembershipEnd:   membershipEnd,
		PaymentStatus:   status,
		MemberStatus:    models.MemberStatusActive,
		PlanFeeAmount:   decimal.NewFromInt(2000),
		AdmissionFee:    decimal.NewFromInt(1500),
		TotalAmountDue:  decimal.NewFromInt(3500),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestSQLiteStore_CreateAndGetMember(t *testing.T) {
	s := newTestStore(t)

	end := time.Date(2025, 5, 31, 10, 0, 0, 0, time.UTC)
	member := testMember(end, models.PaymentStatusPending)
	if err := s.CreateMember(member); err != nil {
		t.Fatalf("Failed to create member: %v", err)
	}

	fetched, err := s.GetMember(member.ID)
	if err != nil {
		t.Fatalf("Failed to get member: %v", err)
	}
	if fetched.Name != member.Name {
		t.Errorf("Expected name %s, got %s", member.Name, fetched.Name)
	}
	if fetched.PlanType != models.PlanMonthly {
		t.Errorf("Expected monthly plan, got %s", fetched.PlanType)
	}
	if !fetched.MembershipEnd.Equal(end) {
		t.Errorf("Expected membership end %s, got %s", end, fetched.MembershipEnd)
	}
	if !fetched.AdmissionFee.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("Expected admission fee 1500, got %s", fetched.AdmissionFee)
	}

	if _, err := s.GetMember(uuid.New()); err == nil || err.Error() != "member not found" {
		t.Errorf("Expected 'member not found', got %v", err)
	}
}

func TestSQLiteStore_UpdateMember(t *testing.T) {
	s := newTestStore(t)

	member := testMember(time.Date(2025, 5, 31, 10, 0, 0, 0, time.UTC), models.PaymentStatusPending)
	if err := s.CreateMember(member); err != nil {
		t.Fatalf("Failed to create member: %v", err)
	}

	member.PaymentStatus = models.PaymentStatusPaid
	member.MembershipEnd = member.MembershipEnd.AddDate(0, 0, 30)
	if err := s.UpdateMember(member); err != nil {
		t.Fatalf("Failed to update member: %v", err)
	}

	fetched, _ := s.GetMember(member.ID)
	if fetched.PaymentStatus != models.PaymentStatusPaid {
		t.Errorf("Expected paid status, got %s", fetched.PaymentStatus)
	}
	if !fetched.MembershipEnd.Equal(member.MembershipEnd) {
		t.Errorf("Expected extended end %s, got %s", member.MembershipEnd, fetched.MembershipEnd)
	}

	missing := testMember(time.Now().UTC(), models.PaymentStatusPending)
	if err := s.UpdateMember(missing); err == nil || err.Error() != "member not found" {
		t.Errorf("Expected 'member not found', got %v", err)
	}
}

func TestSQLiteStore_GetMembersExpiringBetween(t *testing.T) {
	s := newTestStore(t)

	dayStart := time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24*time.Hour - time.Nanosecond)

	inWindow := testMember(dayStart.Add(18*time.Hour), models.PaymentStatusPaid)
	pendingInWindow := testMember(dayStart.Add(6*time.Hour), models.PaymentStatusPending)
	expiredInWindow := testMember(dayStart.Add(12*time.Hour), models.PaymentStatusExpired)
	outside := testMember(dayStart.AddDate(0, 0, 2), models.PaymentStatusPaid)
	for _, m := range []*models.Member{inWindow, pendingInWindow, expiredInWindow, outside} {
		if err := s.CreateMember(m); err != nil {
			t.Fatalf("Failed to create member: %v", err)
		}
	}

	members, err := s.GetMembersExpiringBetween(dayStart, dayEnd, []models.PaymentStatus{
		models.PaymentStatusPaid, models.PaymentStatusPending,
	})
	if err != nil {
		t.Fatalf("Failed to query expiring members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("Expected 2 expiring members, got %d", len(members))
	}
	for _, m := range members {
		if m.ID == expiredInWindow.ID || m.ID == outside.ID {
			t.Errorf("Unexpected member %s in window result", m.ID)
		}
	}
}

func TestSQLiteStore_Payments(t *testing.T) {
	s := newTestStore(t)

	memberID := uuid.New()
	first := &models.Payment{
		ID:          uuid.New(),
		MemberID:    memberID,
		Amount:      decimal.NewFromInt(2000),
		Method:      models.MethodCash,
		PaymentDate: time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC),
		Description: "renewal",
	}
	second := &models.Payment{
		ID:            uuid.New(),
		MemberID:      memberID,
		Amount:        decimal.NewFromFloat(1500.50),
		Method:        models.MethodRazorpay,
		PaymentDate:   time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		TransactionID: "pay_123",
	}
	other := &models.Payment{
		ID:          uuid.New(),
		MemberID:    uuid.New(),
		Amount:      decimal.NewFromInt(500),
		Method:      models.MethodUPI,
		PaymentDate: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
	}
	for _, p := range []*models.Payment{first, second, other} {
		if err := s.CreatePayment(p); err != nil {
			t.Fatalf("Failed to create payment: %v", err)
		}
	}

	payments, err := s.GetPaymentsForMember(memberID)
	if err != nil {
		t.Fatalf("Failed to get payments: %v", err)
	}
	if len(payments) != 2 {
		t.Fatalf("Expected 2 payments, got %d", len(payments))
	}
	// Newest first.
	if payments[0].ID != second.ID {
		t.Errorf("Expected newest payment first, got %s", payments[0].ID)
	}
	if !payments[0].Amount.Equal(decimal.NewFromFloat(1500.50)) {
		t.Errorf("Expected amount 1500.5 preserved, got %s", payments[0].Amount)
	}

	since, err := s.GetPaymentsSince(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Failed to get payments since: %v", err)
	}
	if len(since) != 2 {
		t.Errorf("Expected 2 payments since June, got %d", len(since))
	}

	all, err := s.GetAllPayments()
	if err != nil {
		t.Fatalf("Failed to get all payments: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 payments total, got %d", len(all))
	}
}

func TestSQLiteStore_AddEarnings(t *testing.T) {
	s := newTestStore(t)

	if err := s.AddEarnings(2025, 6, "cash", decimal.NewFromInt(500)); err != nil {
		t.Fatalf("Failed to add earnings: %v", err)
	}
	if err := s.AddEarnings(2025, 6, "cash", decimal.NewFromInt(500)); err != nil {
		t.Fatalf("Failed to add earnings: %v", err)
	}
	if err := s.AddEarnings(2025, 6, "upi", decimal.NewFromInt(1000)); err != nil {
		t.Fatalf("Failed to add earnings: %v", err)
	}

	bucket, err := s.GetMonthlyEarnings(2025, 6)
	if err != nil {
		t.Fatalf("Failed to get earnings: %v", err)
	}
	if !bucket.TotalEarnings.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("Expected total 2000, got %s", bucket.TotalEarnings)
	}
	if !bucket.CashAmount.Equal(decimal.NewFromInt(1000)) || bucket.CashCount != 2 {
		t.Errorf("Expected cash 1000/2, got %s/%d", bucket.CashAmount, bucket.CashCount)
	}
	if !bucket.UPIAmount.Equal(decimal.NewFromInt(1000)) || bucket.UPICount != 1 {
		t.Errorf("Expected upi 1000/1, got %s/%d", bucket.UPIAmount, bucket.UPICount)
	}

	empty, err := s.GetMonthlyEarnings(2025, 7)
	if err != nil {
		t.Fatalf("Failed to get empty bucket: %v", err)
	}
	if !empty.TotalEarnings.Equal(decimal.Zero) {
		t.Errorf("Expected empty bucket, got %s", empty.TotalEarnings)
	}
}

func TestSQLiteStore_ReminderLogDedup(t *testing.T) {
	s := newTestStore(t)

	memberID := uuid.New()
	end := time.Date(2025, 6, 9, 18, 30, 0, 0, time.UTC)
	entry := &models.ReminderLogEntry{
		ID:               uuid.New(),
		MemberID:         memberID,
		DaysBeforeExpiry: 7,
		SentDate:         "2025-06-02",
		SentAt:           time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
		MembershipEnd:    end,
	}

	inserted, err := s.LogReminder(entry)
	if err != nil {
		t.Fatalf("Failed to log reminder: %v", err)
	}
	if !inserted {
		t.Fatal("Expected first insert to succeed")
	}

	// Same compound key, different row ID: must be rejected atomically.
	dup := *entry
	dup.ID = uuid.New()
	inserted, err = s.LogReminder(&dup)
	if err != nil {
		t.Fatalf("Duplicate insert errored instead of being ignored: %v", err)
	}
	if inserted {
		t.Error("Expected duplicate compound key to be rejected")
	}

	has, err := s.HasReminder(memberID, 7, "2025-06-02", end)
	if err != nil {
		t.Fatalf("Failed to check reminder: %v", err)
	}
	if !has {
		t.Error("Expected reminder to be found by compound key")
	}

	// A different membership_end snapshot is a different key.
	has, err = s.HasReminder(memberID, 7, "2025-06-02", end.AddDate(0, 0, 30))
	if err != nil {
		t.Fatalf("Failed to check reminder: %v", err)
	}
	if has {
		t.Error("Expected changed snapshot to miss the log entry")
	}

	fresh := *entry
	fresh.ID = uuid.New()
	fresh.MembershipEnd = end.AddDate(0, 0, 30)
	inserted, err = s.LogReminder(&fresh)
	if err != nil || !inserted {
		t.Fatalf("Expected fresh snapshot insert to succeed, inserted=%v err=%v", inserted, err)
	}

	history, err := s.GetReminderHistory(&memberID)
	if err != nil {
		t.Fatalf("Failed to get history: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("Expected 2 history entries, got %d", len(history))
	}
}

func TestSQLiteStore_AppendReminder_NoDedup(t *testing.T) {
	s := newTestStore(t)

	memberID := uuid.New()
	end := time.Date(2025, 6, 9, 18, 30, 0, 0, time.UTC)
	manual := func() *models.ReminderLogEntry {
		return &models.ReminderLogEntry{
			ID:               uuid.New(),
			MemberID:         memberID,
			DaysBeforeExpiry: 3,
			SentDate:         "2025-06-06",
			SentAt:           time.Date(2025, 6, 6, 11, 0, 0, 0, time.UTC),
			MembershipEnd:    end,
			Origin:           models.ReminderOriginManual,
		}
	}

	// Identical compound keys: manual appends are never suppressed.
	if err := s.AppendReminder(manual()); err != nil {
		t.Fatalf("Failed to append reminder: %v", err)
	}
	if err := s.AppendReminder(manual()); err != nil {
		t.Fatalf("Failed to append repeat reminder: %v", err)
	}

	// The manual rows do not claim the scheduled dedup key.
	scheduled := manual()
	scheduled.Origin = models.ReminderOriginScheduled
	inserted, err := s.LogReminder(scheduled)
	if err != nil {
		t.Fatalf("Failed to log scheduled reminder: %v", err)
	}
	if !inserted {
		t.Error("Expected scheduled insert to succeed alongside manual rows")
	}

	history, err := s.GetReminderHistory(&memberID)
	if err != nil {
		t.Fatalf("Failed to get history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("Expected 3 history entries, got %d", len(history))
	}
	manualCount := 0
	for _, entry := range history {
		if entry.Origin == models.ReminderOriginManual {
			manualCount++
		}
	}
	if manualCount != 2 {
		t.Errorf("Expected 2 manual entries, got %d", manualCount)
	}
}

func TestSQLiteStore_Settings(t *testing.T) {
	s := newTestStore(t)

	value, err := s.GetSetting("rate_table")
	if err != nil {
		t.Fatalf("Failed to get absent setting: %v", err)
	}
	if value != "" {
		t.Errorf("Expected empty value for absent setting, got %q", value)
	}

	if err := s.PutSetting("rate_table", `{"prices":{"monthly":"2500"}}`); err != nil {
		t.Fatalf("Failed to put setting: %v", err)
	}
	if err := s.PutSetting("rate_table", `{"prices":{"monthly":"2600"}}`); err != nil {
		t.Fatalf("Failed to overwrite setting: %v", err)
	}

	value, err = s.GetSetting("rate_table")
	if err != nil {
		t.Fatalf("Failed to get setting: %v", err)
	}
	if value != `{"prices":{"monthly":"2600"}}` {
		t.Errorf("Expected overwritten value, got %q", value)
	}
}
