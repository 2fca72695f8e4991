package store

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gymdesk/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	// Manually enable foreign keys and WAL mode
	_, err = db.Exec("PRAGMA foreign_keys = ON;")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	_, err = db.Exec("PRAGMA journal_mode = WAL;")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	log.Println("Database connection established and schema initialized.")
	return s, nil
}

// initSchema creates the database tables if they don't already exist.
// We use TEXT for decimal fields in SQLite to ensure no precision is lost.
// All timestamps are written in UTC so their string forms order correctly.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		phone TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		plan_type TEXT NOT NULL,
		join_date DATETIME NOT NULL,
		membership_start DATETIME NOT NULL,
		membership_end DATETIME NOT NULL,
		payment_status TEXT NOT NULL,
		member_status TEXT NOT NULL,
		plan_fee_amount TEXT NOT NULL DEFAULT '0',
		admission_fee_amount TEXT NOT NULL DEFAULT '0',
		total_amount_due TEXT NOT NULL DEFAULT '0',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		method TEXT NOT NULL,
		payment_date DATETIME NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		transaction_id TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS monthly_earnings (
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		total_earnings TEXT NOT NULL DEFAULT '0',
		cash_amount TEXT NOT NULL DEFAULT '0',
		cash_count INTEGER NOT NULL DEFAULT 0,
		upi_amount TEXT NOT NULL DEFAULT '0',
		upi_count INTEGER NOT NULL DEFAULT 0,
		card_amount TEXT NOT NULL DEFAULT '0',
		card_count INTEGER NOT NULL DEFAULT 0,
		online_amount TEXT NOT NULL DEFAULT '0',
		online_count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (year, month)
	);
	CREATE TABLE IF NOT EXISTS reminder_logs (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		days_before_expiry INTEGER NOT NULL,
		sent_date TEXT NOT NULL,
		sent_at DATETIME NOT NULL,
		membership_end DATETIME NOT NULL,
		origin TEXT NOT NULL DEFAULT 'scheduled'
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_reminder_dedup
		ON reminder_logs(member_id, days_before_expiry, sent_date, membership_end)
		WHERE origin = 'scheduled';
	CREATE INDEX IF NOT EXISTS idx_members_membership_end ON members(membership_end);
	CREATE INDEX IF NOT EXISTS idx_payments_member_id ON payments(member_id);
	CREATE TABLE IF NOT EXISTS settings (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

const memberColumns = `id, name, email, phone, address, plan_type, join_date, membership_start, membership_end, payment_status, member_status, plan_fee_amount, admission_fee_amount, total_amount_due, created_at, updated_at`

// CreateMember inserts a new member into the database.
func (s *SQLiteStore) CreateMember(member *models.Member) error {
	_, err := s.db.Exec(
		`INSERT INTO members (`+memberColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		member.ID.String(), member.Name, member.Email, member.Phone, member.Address,
		string(member.PlanType), member.JoinDate.UTC(), member.MembershipStart.UTC(), member.MembershipEnd.UTC(),
		string(member.PaymentStatus), string(member.MemberStatus),
		member.PlanFeeAmount, member.AdmissionFee, member.TotalAmountDue,
		member.CreatedAt.UTC(), member.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create member: %w", err)
	}
	return nil
}

// GetMember retrieves a member by ID.
func (s *SQLiteStore) GetMember(id uuid.UUID) (*models.Member, error) {
	row := s.db.QueryRow(`SELECT `+memberColumns+` FROM members WHERE id = ?`, id.String())
	member, err := scanMember(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("member not found")
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return member, nil
}

// UpdateMember updates an existing member in the database.
func (s *SQLiteStore) UpdateMember(member *models.Member) error {
	result, err := s.db.Exec(
		`UPDATE members SET name = ?, email = ?, phone = ?, address = ?, plan_type = ?, join_date = ?, membership_start = ?, membership_end = ?, payment_status = ?, member_status = ?, plan_fee_amount = ?, admission_fee_amount = ?, total_amount_due = ?, updated_at = ? WHERE id = ?`,
		member.Name, member.Email, member.Phone, member.Address,
		string(member.PlanType), member.JoinDate.UTC(), member.MembershipStart.UTC(), member.MembershipEnd.UTC(),
		string(member.PaymentStatus), string(member.MemberStatus),
		member.PlanFeeAmount, member.AdmissionFee, member.TotalAmountDue,
		member.UpdatedAt.UTC(), member.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update member: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("member not found")
	}
	return nil
}

// DeleteMember removes a member. Payments are kept: the ledger is
// append-only and remains the source of truth for revenue.
func (s *SQLiteStore) DeleteMember(id uuid.UUID) error {
	result, err := s.db.Exec(`DELETE FROM members WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete member: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("member not found")
	}
	return nil
}

// GetAllMembers retrieves all members.
func (s *SQLiteStore) GetAllMembers() ([]*models.Member, error) {
	rows, err := s.db.Query(`SELECT ` + memberColumns + ` FROM members ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all members: %w", err)
	}
	defer rows.Close()
	return scanMembers(rows)
}

// GetMembersExpiringBetween retrieves members whose membership_end falls
// within [start, end] with one of the given cached payment statuses.
func (s *SQLiteStore) GetMembersExpiringBetween(start, end time.Time, statuses []models.PaymentStatus) ([]*models.Member, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(statuses))
	placeholders = placeholders[:len(placeholders)-1]

	args := []interface{}{start.UTC(), end.UTC()}
	for _, st := range statuses {
		args = append(args, string(st))
	}

	rows, err := s.db.Query(
		`SELECT `+memberColumns+` FROM members WHERE membership_end BETWEEN ? AND ? AND payment_status IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get expiring members: %w", err)
	}
	defer rows.Close()
	return scanMembers(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMember(row rowScanner) (*models.Member, error) {
	var member models.Member
	var idStr, planType, paymentStatus, memberStatus string
	var joinDate, start, end, created, updated time.Time

	err := row.Scan(&idStr, &member.Name, &member.Email, &member.Phone, &member.Address,
		&planType, &joinDate, &start, &end, &paymentStatus, &memberStatus,
		&member.PlanFeeAmount, &member.AdmissionFee, &member.TotalAmountDue, &created, &updated)
	if err != nil {
		return nil, err
	}
	member.ID = uuid.MustParse(idStr)
	member.PlanType = models.PlanType(planType)
	member.JoinDate = joinDate
	member.MembershipStart = start
	member.MembershipEnd = end
	member.PaymentStatus = models.PaymentStatus(paymentStatus)
	member.MemberStatus = models.MemberStatus(memberStatus)
	member.CreatedAt = created
	member.UpdatedAt = updated
	return &member, nil
}

func scanMembers(rows *sql.Rows) ([]*models.Member, error) {
	var members []*models.Member
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member row: %w", err)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return members, nil
}

// CreatePayment appends a payment to the ledger.
func (s *SQLiteStore) CreatePayment(payment *models.Payment) error {
	_, err := s.db.Exec(
		`INSERT INTO payments (id, member_id, amount, method, payment_date, description, transaction_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		payment.ID.String(), payment.MemberID.String(), payment.Amount,
		string(payment.Method), payment.PaymentDate.UTC(), payment.Description, payment.TransactionID,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetPaymentsForMember retrieves all payments for a given member ID.
func (s *SQLiteStore) GetPaymentsForMember(memberID uuid.UUID) ([]*models.Payment, error) {
	rows, err := s.db.Query(
		`SELECT id, member_id, amount, method, payment_date, description, transaction_id FROM payments WHERE member_id = ? ORDER BY payment_date DESC`,
		memberID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get payments for member %s: %w", memberID, err)
	}
	defer rows.Close()
	return scanPayments(rows)
}

// GetAllPayments retrieves all payments, newest first.
func (s *SQLiteStore) GetAllPayments() ([]*models.Payment, error) {
	rows, err := s.db.Query(`SELECT id, member_id, amount, method, payment_date, description, transaction_id FROM payments ORDER BY payment_date DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all payments: %w", err)
	}
	defer rows.Close()
	return scanPayments(rows)
}

// GetPaymentsSince retrieves payments made at or after the given instant.
func (s *SQLiteStore) GetPaymentsSince(since time.Time) ([]*models.Payment, error) {
	rows, err := s.db.Query(
		`SELECT id, member_id, amount, method, payment_date, description, transaction_id FROM payments WHERE payment_date >= ? ORDER BY payment_date DESC`,
		since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get payments since %s: %w", since, err)
	}
	defer rows.Close()
	return scanPayments(rows)
}

func scanPayments(rows *sql.Rows) ([]*models.Payment, error) {
	var payments []*models.Payment
	for rows.Next() {
		var payment models.Payment
		var idStr, memberIDStr, method string
		var paymentDate time.Time
		if err := rows.Scan(&idStr, &memberIDStr, &payment.Amount, &method, &paymentDate, &payment.Description, &payment.TransactionID); err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		payment.ID = uuid.MustParse(idStr)
		payment.MemberID = uuid.MustParse(memberIDStr)
		payment.Method = models.PaymentMethod(method)
		payment.PaymentDate = paymentDate
		payments = append(payments, &payment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return payments, nil
}

// AddEarnings increments the (year,month) bucket for the given category
// as one logical upsert. Decimal amounts live in TEXT columns, so the
// arithmetic happens here inside a transaction rather than in SQL.
func (s *SQLiteStore) AddEarnings(year, month int, category string, amount decimal.Decimal) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	earnings := &models.MonthlyEarnings{Year: year, Month: month}
	existing := true
	row := tx.QueryRow(
		`SELECT total_earnings, cash_amount, cash_count, upi_amount, upi_count, card_amount, card_count, online_amount, online_count FROM monthly_earnings WHERE year = ? AND month = ?`,
		year, month,
	)
	err = row.Scan(&earnings.TotalEarnings,
		&earnings.CashAmount, &earnings.CashCount,
		&earnings.UPIAmount, &earnings.UPICount,
		&earnings.CardAmount, &earnings.CardCount,
		&earnings.OnlineAmount, &earnings.OnlineCount)
	if err == sql.ErrNoRows {
		existing = false
		earnings = emptyEarnings(year, month)
	} else if err != nil {
		return fmt.Errorf("failed to read earnings bucket: %w", err)
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

	if existing {
		_, err = tx.Exec(
			`UPDATE monthly_earnings SET total_earnings = ?, cash_amount = ?, cash_count = ?, upi_amount = ?, upi_count = ?, card_amount = ?, card_count = ?, online_amount = ?, online_count = ? WHERE year = ? AND month = ?`,
			earnings.TotalEarnings,
			earnings.CashAmount, earnings.CashCount,
			earnings.UPIAmount, earnings.UPICount,
			earnings.CardAmount, earnings.CardCount,
			earnings.OnlineAmount, earnings.OnlineCount,
			year, month,
		)
	} else {
		_, err = tx.Exec(
			`INSERT INTO monthly_earnings (year, month, total_earnings, cash_amount, cash_count, upi_amount, upi_count, card_amount, card_count, online_amount, online_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			year, month, earnings.TotalEarnings,
			earnings.CashAmount, earnings.CashCount,
			earnings.UPIAmount, earnings.UPICount,
			earnings.CardAmount, earnings.CardCount,
			earnings.OnlineAmount, earnings.OnlineCount,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to upsert earnings bucket: %w", err)
	}

	return tx.Commit()
}

// GetMonthlyEarnings retrieves the earnings bucket for (year,month).
// A month with no payments yields an empty bucket, not an error.
func (s *SQLiteStore) GetMonthlyEarnings(year, month int) (*models.MonthlyEarnings, error) {
	earnings := &models.MonthlyEarnings{Year: year, Month: month}
	row := s.db.QueryRow(
		`SELECT total_earnings, cash_amount, cash_count, upi_amount, upi_count, card_amount, card_count, online_amount, online_count FROM monthly_earnings WHERE year = ? AND month = ?`,
		year, month,
	)
	err := row.Scan(&earnings.TotalEarnings,
		&earnings.CashAmount, &earnings.CashCount,
		&earnings.UPIAmount, &earnings.UPICount,
		&earnings.CardAmount, &earnings.CardCount,
		&earnings.OnlineAmount, &earnings.OnlineCount)
	if err == sql.ErrNoRows {
		return emptyEarnings(year, month), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get monthly earnings: %w", err)
	}
	return earnings, nil
}

func emptyEarnings(year, month int) *models.MonthlyEarnings {
	return &models.MonthlyEarnings{
		Year: year, Month: month,
		TotalEarnings: decimal.Zero,
		CashAmount:    decimal.Zero,
		UPIAmount:     decimal.Zero,
		CardAmount:    decimal.Zero,
		OnlineAmount:  decimal.Zero,
	}
}

// LogReminder appends a scheduled reminder log entry unless one with
// the same dedup key already exists. The unique index is partial over
// scheduled entries and makes the insert-if-absent atomic, so two
// overlapping scheduler ticks cannot both record the same (member,
// window, day, expiry snapshot).
func (s *SQLiteStore) LogReminder(entry *models.ReminderLogEntry) (bool, error) {
	result, err := s.db.Exec(
		`INSERT OR IGNORE INTO reminder_logs (id, member_id, days_before_expiry, sent_date, sent_at, membership_end, origin)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID.String(), entry.MemberID.String(), entry.DaysBeforeExpiry,
		entry.SentDate, entry.SentAt.UTC(), entry.MembershipEnd.UTC(),
		string(models.ReminderOriginScheduled),
	)
	if err != nil {
		return false, fmt.Errorf("failed to log reminder: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// AppendReminder appends a log entry with no duplicate suppression.
// Manual sends use this path: each delivery is auditable even when an
// identical reminder already went out the same day.
func (s *SQLiteStore) AppendReminder(entry *models.ReminderLogEntry) error {
	origin := entry.Origin
	if origin == "" {
		origin = models.ReminderOriginManual
	}
	_, err := s.db.Exec(
		`INSERT INTO reminder_logs (id, member_id, days_before_expiry, sent_date, sent_at, membership_end, origin)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID.String(), entry.MemberID.String(), entry.DaysBeforeExpiry,
		entry.SentDate, entry.SentAt.UTC(), entry.MembershipEnd.UTC(),
		string(origin),
	)
	if err != nil {
		return fmt.Errorf("failed to append reminder: %w", err)
	}
	return nil
}

// HasReminder reports whether a reminder matching the compound dedup key
// has already been logged.
func (s *SQLiteStore) HasReminder(memberID uuid.UUID, daysBeforeExpiry int, sentDate string, membershipEnd time.Time) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(1) FROM reminder_logs WHERE member_id = ? AND days_before_expiry = ? AND sent_date = ? AND membership_end = ?`,
		memberID.String(), daysBeforeExpiry, sentDate, membershipEnd.UTC(),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check reminder log: %w", err)
	}
	return count > 0, nil
}

// GetReminderHistory retrieves reminder log entries, newest first,
// optionally restricted to one member.
func (s *SQLiteStore) GetReminderHistory(memberID *uuid.UUID) ([]*models.ReminderLogEntry, error) {
	query := `SELECT id, member_id, days_before_expiry, sent_date, sent_at, membership_end, origin FROM reminder_logs`
	var args []interface{}
	if memberID != nil {
		query += ` WHERE member_id = ?`
		args = append(args, memberID.String())
	}
	query += ` ORDER BY sent_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get reminder history: %w", err)
	}
	defer rows.Close()

	var entries []*models.ReminderLogEntry
	for rows.Next() {
		var entry models.ReminderLogEntry
		var idStr, memberIDStr, origin string
		if err := rows.Scan(&idStr, &memberIDStr, &entry.DaysBeforeExpiry, &entry.SentDate, &entry.SentAt, &entry.MembershipEnd, &origin); err != nil {
			return nil, fmt.Errorf("failed to scan reminder log row: %w", err)
		}
		entry.ID = uuid.MustParse(idStr)
		entry.MemberID = uuid.MustParse(memberIDStr)
		entry.Origin = models.ReminderOrigin(origin)
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return entries, nil
}

// GetSetting returns the raw JSON value stored under name, or "" when
// the setting has never been written.
func (s *SQLiteStore) GetSetting(name string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE name = ?`, name).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %q: %w", name, err)
	}
	return value, nil
}

// PutSetting stores the raw JSON value under name.
func (s *SQLiteStore) PutSetting(name, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (name, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		name, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to put setting %q: %w", name, err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
