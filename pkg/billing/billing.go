// Package billing implements membership fee calculation, admission-fee
// transitions, payment-driven membership extension and status
// derivation.
package billing

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gymdesk/pkg/earnings"
	"gymdesk/pkg/models"
	"gymdesk/pkg/rates"
	"gymdesk/pkg/store"
)

const fallbackExtensionDays = 30

var thirty = decimal.NewFromInt(30)

// Engine handles the business logic for memberships and payments.
type Engine struct {
	storage    store.Storage
	rates      rates.Source
	aggregator *earnings.Aggregator

	// Now is the clock used for all date derivations. Tests pin it.
	Now func() time.Time
}

// NewEngine creates a new Engine with the given collaborators.
func NewEngine(storage store.Storage, src rates.Source, aggregator *earnings.Aggregator) *Engine {
	return &Engine{
		storage:    storage,
		rates:      src,
		aggregator: aggregator,
		Now:        time.Now,
	}
}

// CalculateFee returns the current price of a plan. Rates are resolved
// against the admin-editable rate table on every call, so a rate change
// takes effect without a restart. Unknown plans fall back to monthly.
func (e *Engine) CalculateFee(plan models.PlanType) decimal.Decimal {
	return e.rates.RateTable().Price(plan)
}

// CalculateEndDate returns startDate plus the plan's duration in days.
// Durations are fixed day counts, not calendar months: a quarterly plan
// started on Jan 31 ends exactly 90 days later, not on Apr 30.
func (e *Engine) CalculateEndDate(startDate time.Time, plan models.PlanType) time.Time {
	return startDate.AddDate(0, 0, e.rates.RateTable().DurationDays(plan))
}

// ResolveAdmissionFee applies the admission-fee transition rules. The
// fee is charged only while the member's plan is monthly:
//
//   - switching into monthly charges the current admission-fee setting
//   - staying on monthly preserves the existing fee unchanged
//   - switching out of monthly resets the fee to zero
//
// Pure function of (old plan, new plan, old fee); it must run on every
// member update as well as on creation.
func (e *Engine) ResolveAdmissionFee(oldPlan, newPlan models.PlanType, existingFee decimal.Decimal) decimal.Decimal {
	if newPlan != models.PlanMonthly {
		return decimal.Zero
	}
	if oldPlan == models.PlanMonthly {
		return existingFee
	}
	return e.rates.AdmissionFee()
}

// CalculateExtensionDays converts a payment amount into extension days:
// floor(amount / monthlyRate * 30). The monthly rate is used regardless
// of the paying member's own plan. That cross-plan normalization is a
// deliberate business rule: every payment is measured in months at the
// standard monthly rate, so a quarterly member can top up in
// month-equivalents. A misconfigured (zero or negative) monthly rate
// falls back to a fixed 30-day extension.
func (e *Engine) CalculateExtensionDays(amount decimal.Decimal) int {
	monthlyRate := e.rates.RateTable().Price(models.PlanMonthly)
	if monthlyRate.LessThanOrEqual(decimal.Zero) {
		log.Printf("Monthly rate is %s, falling back to %d-day extension", monthlyRate, fallbackExtensionDays)
		return fallbackExtensionDays
	}
	return int(amount.Mul(thirty).Div(monthlyRate).Floor().IntPart())
}

// RegisterMember fills in the derived fields of a new member (fees,
// total due, membership window) and persists it.
func (e *Engine) RegisterMember(member *models.Member) error {
	now := e.Now()
	if member.ID == uuid.Nil {
		member.ID = uuid.New()
	}
	if member.JoinDate.IsZero() {
		member.JoinDate = now
	}
	member.MembershipStart = member.JoinDate
	member.MembershipEnd = e.CalculateEndDate(member.MembershipStart, member.PlanType)
	member.PlanFeeAmount = e.CalculateFee(member.PlanType)
	member.AdmissionFee = e.ResolveAdmissionFee("", member.PlanType, decimal.Zero)
	member.TotalAmountDue = member.PlanFeeAmount.Add(member.AdmissionFee)
	member.PaymentStatus = models.PaymentStatusPending
	member.MemberStatus = models.MemberStatusActive
	member.CreatedAt = now
	member.UpdatedAt = now

	if err := e.storage.CreateMember(member); err != nil {
		return fmt.Errorf("failed to store member: %w", err)
	}
	return nil
}

// ApplyPlanChange moves a member to newPlan, recomputing the plan fee,
// the admission fee per the transition rules, and the total due. Called
// on every member update, including same-plan updates, so the admission
// fee invariant holds regardless of what else changed.
func (e *Engine) ApplyPlanChange(member *models.Member, newPlan models.PlanType) {
	member.AdmissionFee = e.ResolveAdmissionFee(member.PlanType, newPlan, member.AdmissionFee)
	if newPlan != member.PlanType {
		member.PlanType = newPlan
		member.PlanFeeAmount = e.CalculateFee(newPlan)
	}
	member.TotalAmountDue = member.PlanFeeAmount.Add(member.AdmissionFee)
}

// RecordPayment appends a payment to the ledger, updates the monthly
// earnings bucket and extends the member's membership.
//
// The ledger append commits first and is never rolled back: losing a
// recorded payment is worse than a stale membership window, which the
// read-time reconciliation can always re-derive. If the member update
// fails after the append, the error is logged and the payment is still
// returned.
//
// The extension stacks onto unused time: when membership_end is still
// in the future the new period starts there, otherwise it starts now (a
// lapsed member is not credited for the dead period).
func (e *Engine) RecordPayment(memberID uuid.UUID, amount decimal.Decimal, method models.PaymentMethod, description, transactionID string) (*models.Payment, error) {
	member, err := e.storage.GetMember(memberID)
	if err != nil {
		return nil, err
	}

	now := e.Now()
	extensionDays := e.CalculateExtensionDays(amount)

	baseDate := now
	if member.MembershipEnd.After(now) {
		baseDate = member.MembershipEnd
	}

	payment := &models.Payment{
		ID:            uuid.New(),
		MemberID:      member.ID,
		Amount:        amount,
		Method:        method,
		PaymentDate:   now,
		Description:   description,
		TransactionID: transactionID,
	}
	if err := e.storage.CreatePayment(payment); err != nil {
		return nil, fmt.Errorf("failed to store payment: %w", err)
	}

	if err := e.aggregator.RecordPayment(payment); err != nil {
		log.Printf("Error aggregating payment %s: %v", payment.ID, err)
	}

	member.MembershipEnd = baseDate.AddDate(0, 0, extensionDays)
	member.PaymentStatus = models.PaymentStatusPaid
	member.MemberStatus = models.MemberStatusActive
	member.UpdatedAt = now
	if err := e.storage.UpdateMember(member); err != nil {
		log.Printf("Error updating member %s after payment %s: %v", member.ID, payment.ID, err)
	}

	return payment, nil
}
