// Package reminder runs the expiry-reminder scheduler: periodic checks
// for members expiring in 7, 3 or 1 days, de-duplicated so each
// (member, window, day, expiry snapshot) is notified at most once.
package reminder

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"gymdesk/pkg/models"
	"gymdesk/pkg/notify"
	"gymdesk/pkg/rates"
	"gymdesk/pkg/store"
)

// expiryWindows are the lead times, in days, at which a reminder is due.
var expiryWindows = []int{7, 3, 1}

const startupDelay = 10 * time.Second

// Scheduler drives the reminder checks. Multiple cron triggers plus a
// one-shot startup trigger all funnel into the same idempotent check;
// redundant firings are harmless because the reminder log carries the
// dedup key.
type Scheduler struct {
	storage  store.Storage
	rates    rates.Source
	notifier notify.Notifier
	business rates.BusinessIdentity
	cron     *cron.Cron
	limiter  *rate.Limiter

	startupDelay time.Duration
	startup      *time.Timer

	// Now is the clock used for window math and log entries. Tests pin it.
	Now func() time.Time

	mu sync.Mutex // guards against overlapping ticks
}

// NewScheduler creates a scheduler. It does not start any triggers;
// call Start for that.
func NewScheduler(storage store.Storage, src rates.Source, notifier notify.Notifier, business rates.BusinessIdentity) *Scheduler {
	return &Scheduler{
		storage:      storage,
		rates:        src,
		notifier:     notifier,
		business:     business,
		cron:         cron.New(),
		limiter:      rate.NewLimiter(rate.Every(200*time.Millisecond), 5), // dispatch throttle
		startupDelay: startupDelay,
		Now:          time.Now,
	}
}

// Start registers the periodic triggers (morning and evening checks
// plus an hourly sweep) and a one-shot check shortly after startup,
// then starts the cron runner.
func (s *Scheduler) Start() error {
	specs := []string{"0 9 * * *", "0 18 * * *", "0 * * * *"}
	for _, spec := range specs {
		if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
			return fmt.Errorf("failed to register trigger %q: %w", spec, err)
		}
	}
	s.cron.Start()
	s.startup = time.AfterFunc(s.startupDelay, s.tick)

	log.Println("Reminder scheduler started.")
	return nil
}

// Stop cancels the startup one-shot, halts the cron runner and waits
// for a running tick to finish. No tick fires against the storage after
// Stop returns.
func (s *Scheduler) Stop() {
	if s.startup != nil {
		s.startup.Stop()
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.mu.Lock() // wait out an in-flight tick
	s.mu.Unlock()
	log.Println("Reminder scheduler stopped.")
}

// tick runs one check, skipping if a previous tick is still running.
// A skipped tick loses nothing: the next trigger repeats the same
// idempotent check.
func (s *Scheduler) tick() {
	if !s.mu.TryLock() {
		log.Println("Reminder check already running, skipping overlapping trigger.")
		return
	}
	defer s.mu.Unlock()
	sent := s.CheckAndSend(s.Now())
	log.Printf("Reminder check completed, %d reminders sent.", sent)
}

// CheckAndSend looks up members expiring in each window, filters those
// already notified today for the same expiry instant, sends the rest a
// reminder and logs each success before moving on. A failure for one
// member never aborts the batch. Returns the number of reminders sent
// and logged.
func (s *Scheduler) CheckAndSend(now time.Time) int {
	sent := 0
	for _, days := range expiryWindows {
		start, end := dayBounds(now.AddDate(0, 0, days))
		// Members already known to be expired or cancelled are not reminded.
		members, err := s.storage.GetMembersExpiringBetween(start, end, []models.PaymentStatus{
			models.PaymentStatusPaid, models.PaymentStatusPending,
		})
		if err != nil {
			log.Printf("Error getting members expiring in %d days: %v", days, err)
			continue
		}

		for _, member := range members {
			ok, err := s.shouldSend(member, days, now)
			if err != nil {
				log.Printf("Error checking reminder log for member %s: %v", member.ID, err)
				continue
			}
			if !ok {
				continue
			}
			if !s.send(member, days) {
				log.Printf("Failed to send reminder to %s (%s), continuing.", member.Name, member.Phone)
				continue
			}
			// Commit the log entry immediately so an interrupted batch
			// does not re-notify already-handled members on retry. The
			// insert is atomic on the dedup key, so a racing tick that
			// slipped past shouldSend cannot record a duplicate.
			logged, err := s.logSent(member, days, now)
			if err != nil {
				log.Printf("Error logging reminder for member %s: %v", member.ID, err)
				continue
			}
			if logged {
				sent++
			}
		}
	}
	return sent
}

// shouldSend reports whether no reminder has been logged today for this
// member, window and exact expiry instant. If the member's
// membership_end changed since an earlier send today, the old entry no
// longer matches and a fresh reminder is permitted.
func (s *Scheduler) shouldSend(member *models.Member, days int, now time.Time) (bool, error) {
	exists, err := s.storage.HasReminder(member.ID, days, isoDate(now), member.MembershipEnd)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

func (s *Scheduler) logSent(member *models.Member, days int, now time.Time) (bool, error) {
	return s.storage.LogReminder(&models.ReminderLogEntry{
		ID:               uuid.New(),
		MemberID:         member.ID,
		DaysBeforeExpiry: days,
		SentDate:         isoDate(now),
		SentAt:           now,
		MembershipEnd:    member.MembershipEnd,
		Origin:           models.ReminderOriginScheduled,
	})
}

// send renders the reminder and hands it to the notifier. Dispatch is
// throttled; transport failure is reported to the caller, not raised.
func (s *Scheduler) send(member *models.Member, days int) bool {
	message := s.renderMessage(member, days)
	if err := s.limiter.Wait(context.Background()); err != nil {
		return false
	}
	return s.notifier.Send(member.Phone, message)
}

// SendManual sends a reminder to one member on demand. It bypasses the
// window-based duplicate check and always appends a log entry with the
// member's actual days until expiry, which may be negative for an
// already-expired member. Repeat sends on the same day each get their
// own history entry.
func (s *Scheduler) SendManual(memberID uuid.UUID) error {
	member, err := s.storage.GetMember(memberID)
	if err != nil {
		return err
	}

	now := s.Now()
	days := int(member.MembershipEnd.Sub(now).Hours() / 24)

	if !s.send(member, days) {
		return fmt.Errorf("failed to send reminder to %s", member.Name)
	}
	err = s.storage.AppendReminder(&models.ReminderLogEntry{
		ID:               uuid.New(),
		MemberID:         member.ID,
		DaysBeforeExpiry: days,
		SentDate:         isoDate(now),
		SentAt:           now,
		MembershipEnd:    member.MembershipEnd,
		Origin:           models.ReminderOriginManual,
	})
	if err != nil {
		log.Printf("Error logging manual reminder for member %s: %v", member.ID, err)
	}
	return nil
}

// History returns the reminder log, optionally for one member.
func (s *Scheduler) History(memberID *uuid.UUID) ([]*models.ReminderLogEntry, error) {
	return s.storage.GetReminderHistory(memberID)
}

// renderMessage fills the editable reminder template with member,
// urgency and bank details.
func (s *Scheduler) renderMessage(member *models.Member, days int) string {
	template := s.rates.ReminderTemplate()
	account := s.rates.BankAccount()

	replacer := strings.NewReplacer(
		"{business_name}", s.business.Name,
		"{member_name}", member.Name,
		"{membership_type}", planLabel(member.PlanType),
		"{urgency}", urgency(days),
		"{expiry_date}", member.MembershipEnd.Format("02 Jan 2006"),
		"{account_name}", account.AccountName,
		"{account_number}", account.AccountNumber,
		"{ifsc_code}", account.IFSCCode,
		"{bank_name}", account.BankName,
		"{upi_id}", account.UPIID,
	)
	return replacer.Replace(template.Message)
}

// planLabel turns a plan type into display form, e.g. "six_monthly"
// becomes "Six Monthly".
func planLabel(plan models.PlanType) string {
	words := strings.Split(string(plan), "_")
	for i, word := range words {
		if word != "" {
			words[i] = strings.ToUpper(word[:1]) + word[1:]
		}
	}
	return strings.Join(words, " ")
}

func urgency(days int) string {
	switch {
	case days <= 0:
		return "TODAY"
	case days == 1:
		return "TOMORROW"
	case days <= 3:
		return "very soon"
	case days <= 7:
		return "soon"
	default:
		return fmt.Sprintf("in %d days", days)
	}
}

// dayBounds returns the first and last instant of t's UTC calendar day.
func dayBounds(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24*time.Hour - time.Nanosecond)
}

func isoDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
