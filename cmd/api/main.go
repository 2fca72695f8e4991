package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"gymdesk/pkg/billing"
	"gymdesk/pkg/earnings"
	"gymdesk/pkg/models"
	"gymdesk/pkg/notify"
	"gymdesk/pkg/rates"
	"gymdesk/pkg/reminder"
	"gymdesk/pkg/store"
)

// Server holds the engine, scheduler and aggregator instances.
type Server struct {
	engine     *billing.Engine
	scheduler  *reminder.Scheduler
	aggregator *earnings.Aggregator
	storage    store.Storage
}

func NewServer(storage store.Storage, src rates.Source, notifier notify.Notifier, business rates.BusinessIdentity) *Server {
	aggregator := earnings.NewAggregator(storage)
	return &Server{
		engine:     billing.NewEngine(storage, src, aggregator),
		scheduler:  reminder.NewScheduler(storage, src, notifier, business),
		aggregator: aggregator,
		storage:    storage,
	}
}

func (s *Server) createMemberHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string          `json:"name"`
		Email    string          `json:"email"`
		Phone    string          `json:"phone"`
		Address  string          `json:"address"`
		PlanType models.PlanType `json:"plan_type"`
		JoinDate *time.Time      `json:"join_date"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Phone == "" {
		http.Error(w, "name and phone are required", http.StatusBadRequest)
		return
	}

	member := &models.Member{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Address:  req.Address,
		PlanType: req.PlanType,
	}
	if req.JoinDate != nil {
		member.JoinDate = *req.JoinDate
	}

	if err := s.engine.RegisterMember(member); err != nil {
		log.Printf("Error creating member: %v\n", err)
		http.Error(w, fmt.Sprintf("Failed to create member: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(member)
}

func (s *Server) listMembersHandler(w http.ResponseWriter, r *http.Request) {
	members, err := s.engine.ListMembers(r.URL.Query().Get("status"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(members)
}

func (s *Server) expiringMembersHandler(w http.ResponseWriter, r *http.Request) {
	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "Invalid days value", http.StatusBadRequest)
			return
		}
		days = parsed
	}

	members, err := s.engine.ExpiringWithin(days)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(members)
}

func (s *Server) getMemberHandler(w http.ResponseWriter, r *http.Request) {
	memberID, ok := parseMemberID(w, r)
	if !ok {
		return
	}

	member, err := s.engine.GetMember(memberID)
	if err != nil {
		if err.Error() == "member not found" {
			http.Error(w, "Member not found", http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(member)
}

func (s *Server) updateMemberHandler(w http.ResponseWriter, r *http.Request) {
	memberID, ok := parseMemberID(w, r)
	if !ok {
		return
	}

	var req struct {
		Name     string          `json:"name"`
		Email    string          `json:"email"`
		Phone    string          `json:"phone"`
		Address  string          `json:"address"`
		PlanType models.PlanType `json:"plan_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	member, err := s.engine.GetMember(memberID)
	if err != nil {
		if err.Error() == "member not found" {
			http.Error(w, "Member not found", http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	if req.Name != "" {
		member.Name = req.Name
	}
	if req.Email != "" {
		member.Email = req.Email
	}
	if req.Phone != "" {
		member.Phone = req.Phone
	}
	if req.Address != "" {
		member.Address = req.Address
	}
	newPlan := member.PlanType
	if req.PlanType != "" {
		newPlan = req.PlanType
	}
	// Runs on every update, same-plan included, so the admission-fee
	// transition rules always hold.
	s.engine.ApplyPlanChange(member, newPlan)
	member.UpdatedAt = s.engine.Now()

	if err := s.storage.UpdateMember(member); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(member)
}

func (s *Server) deleteMemberHandler(w http.ResponseWriter, r *http.Request) {
	memberID, ok := parseMemberID(w, r)
	if !ok {
		return
	}

	if err := s.storage.DeleteMember(memberID); err != nil {
		if err.Error() == "member not found" {
			http.Error(w, "Member not found", http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	memberID, ok := parseMemberID(w, r)
	if !ok {
		return
	}

	var req struct {
		Amount        decimal.Decimal      `json:"amount"`
		Method        models.PaymentMethod `json:"method"`
		Description   string               `json:"description"`
		TransactionID string               `json:"transaction_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		http.Error(w, "Amount must be positive", http.StatusBadRequest)
		return
	}

	payment, err := s.engine.RecordPayment(memberID, req.Amount, req.Method, req.Description, req.TransactionID)
	if err != nil {
		if err.Error() == "member not found" {
			http.Error(w, "Member not found", http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(payment)
}

func (s *Server) memberPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	memberID, ok := parseMemberID(w, r)
	if !ok {
		return
	}

	payments, err := s.storage.GetPaymentsForMember(memberID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payments)
}

func (s *Server) listPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	payments, err := s.storage.GetAllPayments()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payments)
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func (s *Server) earningsHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	year, err := strconv.Atoi(vars["year"])
	if err != nil {
		http.Error(w, "Invalid year", http.StatusBadRequest)
		return
	}
	month, err := strconv.Atoi(vars["month"])
	if err != nil || month < 1 || month > 12 {
		http.Error(w, "Invalid month", http.StatusBadRequest)
		return
	}

	summary, err := s.aggregator.MonthlySummary(year, month)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

func (s *Server) manualReminderHandler(w http.ResponseWriter, r *http.Request) {
	memberID, ok := parseMemberID(w, r)
	if !ok {
		return
	}

	if err := s.scheduler.SendManual(memberID); err != nil {
		if err.Error() == "member not found" {
			http.Error(w, "Member not found", http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Reminder sent"})
}

func (s *Server) reminderHistoryHandler(w http.ResponseWriter, r *http.Request) {
	var memberID *uuid.UUID
	if raw := r.URL.Query().Get("member_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "Invalid member ID", http.StatusBadRequest)
			return
		}
		memberID = &parsed
	}

	history, err := s.scheduler.History(memberID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(history)
}

// settingsShapes maps setting names to prototypes of their typed form.
// Incoming bodies are decoded into the typed struct before storage, so
// a malformed blob never reaches the read-through config.
var settingsShapes = map[string]func() interface{}{
	rates.SettingRateTable:        func() interface{} { t := rates.DefaultRateTable(); return &t },
	rates.SettingAdmissionFee:     func() interface{} { f := rates.DefaultAdmissionFee(); return &f },
	rates.SettingReminderTemplate: func() interface{} { t := rates.DefaultReminderTemplate(); return &t },
	rates.SettingBankAccount:      func() interface{} { b := rates.DefaultBankAccount(); return &b },
}

func (s *Server) getSettingHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	shape, ok := settingsShapes[name]
	if !ok {
		http.Error(w, "Unknown setting", http.StatusNotFound)
		return
	}

	value := shape() // defaults unless overridden
	raw, err := s.storage.GetSetting(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), value); err != nil {
			log.Printf("Error parsing stored setting %q: %v", name, err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(value)
}

func (s *Server) putSettingHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	shape, ok := settingsShapes[name]
	if !ok {
		http.Error(w, "Unknown setting", http.StatusNotFound)
		return
	}

	value := shape()
	if err := json.NewDecoder(r.Body).Decode(value); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := s.storage.PutSetting(name, string(encoded)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(value)
}

func parseMemberID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	memberID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid member ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return memberID, true
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/members", s.listMembersHandler).Methods("GET")
	router.HandleFunc("/members", s.createMemberHandler).Methods("POST")
	router.HandleFunc("/members/expiring", s.expiringMembersHandler).Methods("GET")
	router.HandleFunc("/members/{id}", s.getMemberHandler).Methods("GET")
	router.HandleFunc("/members/{id}", s.updateMemberHandler).Methods("PUT")
	router.HandleFunc("/members/{id}", s.deleteMemberHandler).Methods("DELETE")
	router.HandleFunc("/members/{id}/payments", s.recordPaymentHandler).Methods("POST")
	router.HandleFunc("/members/{id}/payments", s.memberPaymentsHandler).Methods("GET")
	router.HandleFunc("/members/{id}/reminders", s.manualReminderHandler).Methods("POST")
	router.HandleFunc("/payments", s.listPaymentsHandler).Methods("GET")
	router.HandleFunc("/reminders", s.reminderHistoryHandler).Methods("GET")
	router.HandleFunc("/dashboard/stats", s.statsHandler).Methods("GET")
	router.HandleFunc("/earnings/{year}/{month}", s.earningsHandler).Methods("GET")
	router.HandleFunc("/settings/{name}", s.getSettingHandler).Methods("GET")
	router.HandleFunc("/settings/{name}", s.putSettingHandler).Methods("PUT")

	return router
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func main() {
	sqliteStore, err := store.NewSQLiteStore(getEnv("GYMDESK_DB", "gymdesk.db"))
	if err != nil {
		log.Fatalf("Failed to initialize SQLite store: %v", err)
	}
	defer sqliteStore.Close()

	business := rates.BusinessIdentity{
		Name:  getEnv("GYMDESK_BUSINESS_NAME", "Iron Paradise Gym"),
		Phone: getEnv("GYMDESK_BUSINESS_PHONE", ""),
	}

	server := NewServer(sqliteStore, rates.NewStoreSource(sqliteStore), notify.NewWhatsAppLinkNotifier(), business)

	if err := server.scheduler.Start(); err != nil {
		log.Fatalf("Failed to start reminder scheduler: %v", err)
	}

	addr := ":" + getEnv("PORT", "8080")
	httpServer := &http.Server{Addr: addr, Handler: server.routes()}

	go func() {
		log.Printf("Server starting on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	server.scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
