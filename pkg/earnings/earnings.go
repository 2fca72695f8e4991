// Package earnings maintains per-(year,month) revenue totals bucketed
// by payment-method category.
package earnings

import (
	"fmt"

	"gymdesk/pkg/models"
	"gymdesk/pkg/store"
)

// Aggregator updates monthly earnings buckets incrementally. Each
// payment is aggregated exactly once, at insertion time; the bucket
// update is one logical upsert in the store.
type Aggregator struct {
	storage store.Storage
}

func NewAggregator(storage store.Storage) *Aggregator {
	return &Aggregator{storage: storage}
}

// CategoryFor maps a payment method to its earnings category. Anything
// that is not cash, UPI or card counts as online.
func CategoryFor(method models.PaymentMethod) string {
	switch method {
	case models.MethodCash:
		return "cash"
	case models.MethodUPI:
		return "upi"
	case models.MethodCard:
		return "card"
	default:
		return "online"
	}
}

// RecordPayment increments the bucket matching the payment's month and
// method category, creating the bucket with the payment as its first
// entry when none exists.
func (a *Aggregator) RecordPayment(payment *models.Payment) error {
	date := payment.PaymentDate.UTC()
	err := a.storage.AddEarnings(date.Year(), int(date.Month()), CategoryFor(payment.Method), payment.Amount)
	if err != nil {
		return fmt.Errorf("failed to aggregate payment %s: %w", payment.ID, err)
	}
	return nil
}

// MonthlySummary returns the earnings bucket for (year,month). A month
// with no payments yields an empty bucket.
func (a *Aggregator) MonthlySummary(year, month int) (*models.MonthlyEarnings, error) {
	return a.storage.GetMonthlyEarnings(year, month)
}
