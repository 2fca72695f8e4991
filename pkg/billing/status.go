package billing

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gymdesk/pkg/models"
)

// Status filter categories accepted by ListMembers.
const (
	FilterActive   = "active"
	FilterExpired  = "expired"
	FilterPending  = "pending"
	FilterOverdue  = "overdue"
	FilterInactive = "inactive"
)

// Reconcile corrects a member's cached payment status from the
// authoritative membership_end. A member whose membership_end has
// passed reads as expired, overriding any stale paid/pending value.
// Idempotent: recomputing and persisting repeatedly yields the same
// stored value, and an expired member is never flipped back.
func (e *Engine) Reconcile(member *models.Member) {
	now := e.Now()
	if !member.MembershipEnd.Before(now) {
		return
	}
	if member.PaymentStatus == models.PaymentStatusExpired {
		return
	}
	member.PaymentStatus = models.PaymentStatusExpired
	member.UpdatedAt = now
	if err := e.storage.UpdateMember(member); err != nil {
		// Stale cached status is a consistency issue, not a caller
		// error; the next read reconciles again.
		log.Printf("Error persisting reconciled status for member %s: %v", member.ID, err)
	}
}

// GetMember fetches one member with its status reconciled.
func (e *Engine) GetMember(id uuid.UUID) (*models.Member, error) {
	member, err := e.storage.GetMember(id)
	if err != nil {
		return nil, err
	}
	e.Reconcile(member)
	return member, nil
}

// ListMembers returns all members, lazily reconciling each one, and
// optionally filters them by status category. An empty filter returns
// everyone.
func (e *Engine) ListMembers(filter string) ([]*models.Member, error) {
	members, err := e.storage.GetAllMembers()
	if err != nil {
		return nil, err
	}

	now := e.Now()
	filtered := make([]*models.Member, 0, len(members))
	for _, member := range members {
		e.Reconcile(member)
		if filter == "" || e.matchesFilter(member, filter, now) {
			filtered = append(filtered, member)
		}
	}
	return filtered, nil
}

func (e *Engine) matchesFilter(member *models.Member, filter string, now time.Time) bool {
	switch filter {
	case FilterActive:
		return member.PaymentStatus == models.PaymentStatusPaid && member.MembershipEnd.After(now)
	case FilterExpired:
		return member.MembershipEnd.Before(now)
	case FilterPending:
		return member.PaymentStatus == models.PaymentStatusPending && !member.MembershipEnd.Before(now)
	case FilterOverdue:
		return member.PaymentStatus == models.PaymentStatusOverdue && !member.MembershipEnd.Before(now)
	case FilterInactive:
		return member.MemberStatus == models.MemberStatusInactive
	default:
		return false
	}
}

// ExpiringWithin returns reconciled members whose membership_end lies
// in (now, now+days].
func (e *Engine) ExpiringWithin(days int) ([]*models.Member, error) {
	if days <= 0 {
		return nil, fmt.Errorf("days must be positive")
	}
	members, err := e.storage.GetAllMembers()
	if err != nil {
		return nil, err
	}

	now := e.Now()
	cutoff := now.AddDate(0, 0, days)
	var expiring []*models.Member
	for _, member := range members {
		e.Reconcile(member)
		if member.MembershipEnd.After(now) && !member.MembershipEnd.After(cutoff) {
			expiring = append(expiring, member)
		}
	}
	return expiring, nil
}

// DashboardStats summarizes the member base and the current month's
// revenue. Revenue comes straight from the payment ledger, not the
// aggregator, so it is correct even if an aggregation step was missed.
type DashboardStats struct {
	TotalMembers   int             `json:"total_members"`
	ActiveMembers  int             `json:"active_members"`
	PendingMembers int             `json:"pending_members"`
	OverdueMembers int             `json:"overdue_members"`
	ExpiredMembers int             `json:"expired_members"`
	ExpiringSoon   int             `json:"expiring_soon"`
	MonthlyRevenue decimal.Decimal `json:"monthly_revenue"`
}

// Stats computes the dashboard summary after reconciling every member.
func (e *Engine) Stats() (*DashboardStats, error) {
	members, err := e.storage.GetAllMembers()
	if err != nil {
		return nil, err
	}

	now := e.Now()
	stats := &DashboardStats{MonthlyRevenue: decimal.Zero}
	cutoff := now.AddDate(0, 0, 7)
	for _, member := range members {
		e.Reconcile(member)
		stats.TotalMembers++
		switch member.PaymentStatus {
		case models.PaymentStatusPaid:
			stats.ActiveMembers++
		case models.PaymentStatusPending:
			stats.PendingMembers++
		case models.PaymentStatusOverdue:
			stats.OverdueMembers++
		case models.PaymentStatusExpired:
			stats.ExpiredMembers++
		}
		if member.MembershipEnd.After(now) && !member.MembershipEnd.After(cutoff) {
			stats.ExpiringSoon++
		}
	}

	startOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	payments, err := e.storage.GetPaymentsSince(startOfMonth)
	if err != nil {
		return nil, err
	}
	for _, payment := range payments {
		stats.MonthlyRevenue = stats.MonthlyRevenue.Add(payment.Amount)
	}

	return stats, nil
}
