// Package notify holds the outbound message transports. Delivery is
// best-effort: the actual SMS/WhatsApp transport is an external
// collaborator, so the implementations here construct the message
// artifacts and report success once they are logged.
package notify

import (
	"log"
	"net/url"
	"strings"
)

// Notifier sends a message to a phone number and reports success.
// Failures are expected to be swallowed by callers: a failed reminder
// for one member must not abort the rest of a batch.
type Notifier interface {
	Send(phoneNumber, message string) bool
}

// NormalizePhone strips spaces and dashes and prefixes the Indian
// country code when none is present.
func NormalizePhone(phone string) string {
	cleaned := strings.NewReplacer(" ", "", "-", "").Replace(phone)
	switch {
	case strings.HasPrefix(cleaned, "+"):
		return cleaned
	case strings.HasPrefix(cleaned, "91") && len(cleaned) > 10:
		return "+" + cleaned
	case strings.HasPrefix(cleaned, "0"):
		return "+91" + cleaned[1:]
	default:
		return "+91" + cleaned
	}
}

// WhatsAppLinkNotifier renders a wa.me link for the message and logs
// it. Generating and logging the link counts as processed; there is no
// network call to fail.
type WhatsAppLinkNotifier struct{}

func NewWhatsAppLinkNotifier() *WhatsAppLinkNotifier {
	return &WhatsAppLinkNotifier{}
}

// Link builds the WhatsApp click-to-chat URL for a phone and message.
func (n *WhatsAppLinkNotifier) Link(phoneNumber, message string) string {
	phone := strings.TrimPrefix(NormalizePhone(phoneNumber), "+")
	return "https://wa.me/" + phone + "?text=" + url.QueryEscape(message)
}

func (n *WhatsAppLinkNotifier) Send(phoneNumber, message string) bool {
	link := n.Link(phoneNumber, message)
	log.Printf("WhatsApp reminder link for %s: %s", NormalizePhone(phoneNumber), link)
	return true
}

// LogNotifier writes the message to the process log. It is the
// fallback transport when nothing else is configured.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(phoneNumber, message string) bool {
	log.Printf("Reminder for %s: %s", NormalizePhone(phoneNumber), message)
	return true
}
