package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"gymdesk/pkg/billing"
	"gymdesk/pkg/models"
	"gymdesk/pkg/notify"
	"gymdesk/pkg/rates"
	"gymdesk/pkg/store"
)

func setupTestServer() *Server {
	storage := store.NewMemoryStore()
	business := rates.BusinessIdentity{Name: "Iron Paradise Gym", Phone: "+919999988888"}
	return NewServer(storage, rates.NewStoreSource(storage), notify.NewLogNotifier(), business)
}

func doJSON(t *testing.T, router http.Handler, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, body)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func createTestMember(t *testing.T, router http.Handler, plan models.PlanType) *models.Member {
	t.Helper()
	rr := doJSON(t, router, "POST", "/members", map[string]interface{}{
		"name":      "Ravi Kumar",
		"email":     "ravi@example.com",
		"phone":     "9876543210",
		"plan_type": plan,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	var member models.Member
	if err := json.Unmarshal(rr.Body.Bytes(), &member); err != nil {
		t.Fatalf("Failed to decode member: %v", err)
	}
	return &member
}

func TestAPI_CreateAndGetMember(t *testing.T) {
	server := setupTestServer()
	router := server.routes()

	member := createTestMember(t, router, models.PlanQuarterly)

	if !member.PlanFeeAmount.Equal(decimal.NewFromInt(5500)) {
		t.Errorf("Expected plan fee 5500, got %s", member.PlanFeeAmount)
	}
	if !member.AdmissionFee.Equal(decimal.Zero) {
		t.Errorf("Expected no admission fee on quarterly plan, got %s", member.AdmissionFee)
	}
	if member.PaymentStatus != models.PaymentStatusPending {
		t.Errorf("Expected pending status, got %s", member.PaymentStatus)
	}
	expectedEnd := member.MembershipStart.AddDate(0, 0, 90)
	if !member.MembershipEnd.Equal(expectedEnd) {
		t.Errorf("Expected membership end %s, got %s", expectedEnd, member.MembershipEnd)
	}

	rr := doJSON(t, router, "GET", "/members/"+member.ID.String(), nil)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
	var fetched models.Member
	json.Unmarshal(rr.Body.Bytes(), &fetched)
	if fetched.ID != member.ID {
		t.Errorf("Expected ID %s, got %s", member.ID, fetched.ID)
	}
}

func TestAPI_CreateMember_MissingFields(t *testing.T) {
	server := setupTestServer()
	router := server.routes()

	rr := doJSON(t, router, "POST", "/members", map[string]interface{}{
		"name": "No Phone",
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
}

func TestAPI_RecordPayment(t *testing.T) {
	server := setupTestServer()
	router := server.routes()

	member := createTestMember(t, router, models.PlanMonthly)

	rr := doJSON(t, router, "POST", "/members/"+member.ID.String()+"/payments", map[string]interface{}{
		"amount": "2000",
		"method": "cash",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	var payment models.Payment
	json.Unmarshal(rr.Body.Bytes(), &payment)
	if !payment.Amount.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("Expected amount 2000, got %s", payment.Amount)
	}

	// The payment marks the member paid and extends the membership.
	rr = doJSON(t, router, "GET", "/members/"+member.ID.String(), nil)
	var updated models.Member
	json.Unmarshal(rr.Body.Bytes(), &updated)
	if updated.PaymentStatus != models.PaymentStatusPaid {
		t.Errorf("Expected paid status, got %s", updated.PaymentStatus)
	}
	expectedEnd := member.MembershipEnd.AddDate(0, 0, 30)
	if !updated.MembershipEnd.Equal(expectedEnd) {
		t.Errorf("Expected membership end %s, got %s", expectedEnd, updated.MembershipEnd)
	}

	rr = doJSON(t, router, "GET", "/members/"+member.ID.String()+"/payments", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	var payments []*models.Payment
	json.Unmarshal(rr.Body.Bytes(), &payments)
	if len(payments) != 1 {
		t.Errorf("Expected 1 payment, got %d", len(payments))
	}
}

func TestAPI_RecordPayment_RejectsNonPositiveAmount(t *testing.T) {
	server := setupTestServer()
	router := server.routes()

	member := createTestMember(t, router, models.PlanMonthly)

	for _, amount := range []string{"0", "-500"} {
		rr := doJSON(t, router, "POST", "/members/"+member.ID.String()+"/payments", map[string]interface{}{
			"amount": amount,
			"method": "cash",
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400 for amount %s, got %d", amount, rr.Code)
		}
	}
}

func TestAPI_RecordPayment_UnknownMember(t *testing.T) {
	server := setupTestServer()
	router := server.routes()

	rr := doJSON(t, router, "POST", "/members/8f14e45f-ceea-467f-a3e5-4a13a3c2a9b1/payments", map[string]interface{}{
		"amount": "2000",
		"method": "cash",
	})
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}
}

func TestAPI_UpdateMember_PlanChange(t *testing.T) {
	server := setupTestServer()
	router := server.routes()

	member := createTestMember(t, router, models.PlanQuarterly)

	// Updates stamp updated_at from the engine clock, so tests can pin it.
	pinned := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	server.engine.Now = func() time.Time { return pinned }

	rr := doJSON(t, router, "PUT", "/members/"+member.ID.String(), map[string]interface{}{
		"plan_type": "monthly",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	var updated models.Member
	json.Unmarshal(rr.Body.Bytes(), &updated)
	if updated.PlanType != models.PlanMonthly {
		t.Errorf("Expected monthly plan, got %s", updated.PlanType)
	}
	// Moving onto the monthly plan charges the admission fee afresh.
	if !updated.AdmissionFee.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("Expected admission fee 1500, got %s", updated.AdmissionFee)
	}
	if !updated.TotalAmountDue.Equal(decimal.NewFromInt(3500)) {
		t.Errorf("Expected total due 3500, got %s", updated.TotalAmountDue)
	}
	if updated.Name != member.Name {
		t.Errorf("Expected name preserved, got %s", updated.Name)
	}
	if !updated.UpdatedAt.Equal(pinned) {
		t.Errorf("Expected updated_at %s from the engine clock, got %s", pinned, updated.UpdatedAt)
	}
}

func TestAPI_DeleteMember(t *testing.T) {
	server := setupTestServer()
	router := server.routes()

	member := createTestMember(t, router, models.PlanMonthly)

	rr := doJSON(t, router, "DELETE", "/members/"+member.ID.String(), nil)
	if rr.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", rr.Code)
	}

	rr = doJSON(t, router, "GET", "/members/"+member.ID.String(), nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 after delete, got %d", rr.Code)
	}
}

func TestAPI_Earnings(t *testing.T) {
	server := setupTestServer()
	router := server.routes()

	member := createTestMember(t, router, models.PlanMonthly)
	doJSON(t, router, "POST", "/members/"+member.ID.String()+"/payments", map[string]interface{}{
		"amount": "2000",
		"method": "upi",
	})

	now := time.Now().UTC()
	rr := doJSON(t, router, "GET", fmt.Sprintf("/earnings/%d/%d", now.Year(), int(now.Month())), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", rr.Code, rr.Body.String())
	}
	var summary models.MonthlyEarnings
	json.Unmarshal(rr.Body.Bytes(), &summary)
	if !summary.TotalEarnings.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("Expected total 2000, got %s", summary.TotalEarnings)
	}
	if summary.UPICount != 1 {
		t.Errorf("Expected 1 upi payment, got %d", summary.UPICount)
	}

	rr = doJSON(t, router, "GET", "/earnings/2025/13", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for month 13, got %d", rr.Code)
	}
}

func TestAPI_Settings_RateChangeTakesEffectImmediately(t *testing.T) {
	server := setupTestServer()
	router := server.routes()

	table := rates.DefaultRateTable()
	table.Prices[models.PlanMonthly] = decimal.NewFromInt(2500)
	rr := doJSON(t, router, "PUT", "/settings/rate_table", table)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	// No restart: the next registration already uses the new price.
	member := createTestMember(t, router, models.PlanMonthly)
	if !member.PlanFeeAmount.Equal(decimal.NewFromInt(2500)) {
		t.Errorf("Expected plan fee 2500 after rate change, got %s", member.PlanFeeAmount)
	}

	rr = doJSON(t, router, "GET", "/settings/rate_table", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	var stored rates.RateTable
	json.Unmarshal(rr.Body.Bytes(), &stored)
	if !stored.Prices[models.PlanMonthly].Equal(decimal.NewFromInt(2500)) {
		t.Errorf("Expected stored monthly price 2500, got %s", stored.Prices[models.PlanMonthly])
	}
}

func TestAPI_Settings_UnknownName(t *testing.T) {
	server := setupTestServer()
	router := server.routes()

	rr := doJSON(t, router, "GET", "/settings/nonsense", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}
	rr = doJSON(t, router, "PUT", "/settings/nonsense", map[string]string{"a": "b"})
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}
}

func TestAPI_DashboardStats(t *testing.T) {
	server := setupTestServer()
	router := server.routes()

	first := createTestMember(t, router, models.PlanMonthly)
	createTestMember(t, router, models.PlanQuarterly)
	doJSON(t, router, "POST", "/members/"+first.ID.String()+"/payments", map[string]interface{}{
		"amount": "2000",
		"method": "cash",
	})

	rr := doJSON(t, router, "GET", "/dashboard/stats", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	var stats billing.DashboardStats
	json.Unmarshal(rr.Body.Bytes(), &stats)
	if stats.TotalMembers != 2 {
		t.Errorf("Expected 2 members, got %d", stats.TotalMembers)
	}
	if stats.ActiveMembers != 1 || stats.PendingMembers != 1 {
		t.Errorf("Expected 1 paid and 1 pending, got %d/%d", stats.ActiveMembers, stats.PendingMembers)
	}
	if !stats.MonthlyRevenue.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("Expected revenue 2000, got %s", stats.MonthlyRevenue)
	}
}

func TestAPI_ManualReminderAndHistory(t *testing.T) {
	server := setupTestServer()
	router := server.routes()

	member := createTestMember(t, router, models.PlanMonthly)

	rr := doJSON(t, router, "POST", "/members/"+member.ID.String()+"/reminders", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, router, "GET", "/reminders?member_id="+member.ID.String(), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	var history []*models.ReminderLogEntry
	json.Unmarshal(rr.Body.Bytes(), &history)
	if len(history) != 1 {
		t.Fatalf("Expected 1 history entry, got %d", len(history))
	}
	if history[0].MemberID != member.ID {
		t.Errorf("Expected entry for %s, got %s", member.ID, history[0].MemberID)
	}
}
