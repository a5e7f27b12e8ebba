package webhook

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

const (
	EventScanStarted   = "scan.started"
	EventScanCompleted = "scan.completed"
	EventBotStarted    = "bot.started"
	EventBotCompleted  = "bot.completed"
	EventBotFinding    = "bot.finding"
	EventPRCreated     = "pr.created"
)

// Events is the closed set an endpoint may subscribe to.
var Events = []string{
	EventScanStarted,
	EventScanCompleted,
	EventBotStarted,
	EventBotCompleted,
	EventBotFinding,
	EventPRCreated,
}

var (
	ErrInvalidURL    = errors.New("invalid webhook url")
	ErrInvalidEvents = errors.New("invalid webhook events")
)

// ValidateURL accepts absolute https URLs with a host.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: %q must be an absolute URL", ErrInvalidURL, raw)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("%w: %q must use https", ErrInvalidURL, raw)
	}
	return nil
}

// NormalizeEvents checks every event against Events and drops duplicates,
// keeping first-seen order.
func NormalizeEvents(events []string) ([]string, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: at least one event is required", ErrInvalidEvents)
	}
	var (
		out     []string
		unknown []string
	)
	for _, e := range events {
		if !slices.Contains(Events, e) {
			unknown = append(unknown, e)
			continue
		}
		if !slices.Contains(out, e) {
			out = append(out, e)
		}
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: unknown %s (allowed: %s)", ErrInvalidEvents,
			strings.Join(unknown, ", "), strings.Join(Events, ", "))
	}
	return out, nil
}
