// Package rates holds the admin-editable business configuration: plan
// prices and durations, the admission fee, the reminder message
// template and the bank details injected into it. Each concern is a
// small typed struct with explicit defaults; values are read through
// from the settings store on every lookup so an admin edit takes effect
// without a restart. Configuration errors are never fatal: a missing or
// unreadable setting falls back to the defaults.
package rates

import (
	"encoding/json"
	"log"

	"github.com/shopspring/decimal"

	"gymdesk/pkg/models"
	"gymdesk/pkg/store"
)

// Setting names in the settings store.
const (
	SettingRateTable        = "rate_table"
	SettingAdmissionFee     = "admission_fee"
	SettingReminderTemplate = "reminder_template"
	SettingBankAccount      = "bank_account"
)

// RateTable maps plan type to price and to duration in days.
type RateTable struct {
	Prices    map[models.PlanType]decimal.Decimal `json:"prices"`
	Durations map[models.PlanType]int             `json:"durations"`
}

// Price returns the plan's price, falling back to the monthly price for
// an unknown plan key.
func (r RateTable) Price(plan models.PlanType) decimal.Decimal {
	if price, ok := r.Prices[plan]; ok {
		return price
	}
	return r.Prices[models.PlanMonthly]
}

// DurationDays returns the plan's duration in days, falling back to the
// monthly duration for an unknown plan key.
func (r RateTable) DurationDays(plan models.PlanType) int {
	if days, ok := r.Durations[plan]; ok {
		return days
	}
	return r.Durations[models.PlanMonthly]
}

// AdmissionFeeSetting is the one-time fee charged while a member is on
// the monthly plan.
type AdmissionFeeSetting struct {
	Amount decimal.Decimal `json:"amount"`
}

// ReminderTemplate is the editable reminder message. Placeholders like
// {member_name} are substituted at render time.
type ReminderTemplate struct {
	Message string `json:"message"`
}

// BankAccount is the payment-detail block injected into reminders.
type BankAccount struct {
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
	IFSCCode      string `json:"ifsc_code"`
	BankName      string `json:"bank_name"`
	UPIID         string `json:"upi_id"`
}

// BusinessIdentity names the gym in outbound messages.
type BusinessIdentity struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

func DefaultRateTable() RateTable {
	return RateTable{
		Prices: map[models.PlanType]decimal.Decimal{
			models.PlanMonthly:    decimal.NewFromInt(2000),
			models.PlanQuarterly:  decimal.NewFromInt(5500),
			models.PlanSixMonthly: decimal.NewFromInt(10500),
		},
		Durations: map[models.PlanType]int{
			models.PlanMonthly:    30,
			models.PlanQuarterly:  90,
			models.PlanSixMonthly: 180,
		},
	}
}

func DefaultAdmissionFee() AdmissionFeeSetting {
	return AdmissionFeeSetting{Amount: decimal.NewFromInt(1500)}
}

func DefaultReminderTemplate() ReminderTemplate {
	return ReminderTemplate{Message: `{business_name} - Membership Renewal Reminder

Hi {member_name},

Your {membership_type} membership expires {urgency} on {expiry_date}.

Please renew to continue enjoying our gym facilities.

PAYMENT OPTIONS:

Bank Transfer:
Account Name: {account_name}
Account Number: {account_number}
IFSC Code: {ifsc_code}
Bank: {bank_name}

UPI Payment:
UPI ID: {upi_id}

Or visit our gym reception for instant renewal.

Thank you for choosing {business_name}!

- {business_name} Team`}
}

func DefaultBankAccount() BankAccount {
	return BankAccount{
		AccountName:   "Iron Paradise Gym",
		AccountNumber: "Contact Admin",
		IFSCCode:      "Contact Admin",
		BankName:      "Contact Admin",
		UPIID:         "Contact Admin",
	}
}

// Source supplies the current business configuration.
type Source interface {
	RateTable() RateTable
	AdmissionFee() decimal.Decimal
	ReminderTemplate() ReminderTemplate
	BankAccount() BankAccount
}

// StoreSource reads configuration through from a settings store,
// falling back to defaults when a setting is absent or unreadable.
type StoreSource struct {
	storage store.Storage
}

func NewStoreSource(storage store.Storage) *StoreSource {
	return &StoreSource{storage: storage}
}

func (s *StoreSource) RateTable() RateTable {
	table := DefaultRateTable()
	s.load(SettingRateTable, &table)
	return table
}

func (s *StoreSource) AdmissionFee() decimal.Decimal {
	setting := DefaultAdmissionFee()
	s.load(SettingAdmissionFee, &setting)
	return setting.Amount
}

func (s *StoreSource) ReminderTemplate() ReminderTemplate {
	template := DefaultReminderTemplate()
	s.load(SettingReminderTemplate, &template)
	return template
}

func (s *StoreSource) BankAccount() BankAccount {
	account := DefaultBankAccount()
	s.load(SettingBankAccount, &account)
	return account
}

// load unmarshals the named setting into dst, leaving dst untouched on
// any failure.
func (s *StoreSource) load(name string, dst interface{}) {
	raw, err := s.storage.GetSetting(name)
	if err != nil {
		log.Printf("Error reading setting %q, using defaults: %v", name, err)
		return
	}
	if raw == "" {
		return
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		log.Printf("Error parsing setting %q, using defaults: %v", name, err)
	}
}

// StaticSource returns fixed configuration. Tests use it to pin rates.
type StaticSource struct {
	Table     RateTable
	Admission decimal.Decimal
	Template  ReminderTemplate
	Bank      BankAccount
}

func NewStaticSource() *StaticSource {
	return &StaticSource{
		Table:     DefaultRateTable(),
		Admission: DefaultAdmissionFee().Amount,
		Template:  DefaultReminderTemplate(),
		Bank:      DefaultBankAccount(),
	}
}

func (s *StaticSource) RateTable() RateTable               { return s.Table }
func (s *StaticSource) AdmissionFee() decimal.Decimal      { return s.Admission }
func (s *StaticSource) ReminderTemplate() ReminderTemplate { return s.Template }
func (s *StaticSource) BankAccount() BankAccount           { return s.Bank }
