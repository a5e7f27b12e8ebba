// Package lifecycle holds the bot promotion and proposal state machines.
// Nothing here touches the store; callers feed in what they read.
package lifecycle

import (
	"errors"
	"fmt"
	"slices"

	"github.com/nikhilbhutani/botfleet/internal/models"
)

type Status string

const (
	StatusDraft   Status = "draft"
	StatusTesting Status = "testing"
	StatusActive  Status = "active"
)

// PromotionOrder is linear: there is no way back from active.
var PromotionOrder = []Status{StatusDraft, StatusTesting, StatusActive}

// EventBotPromoted is the activity type that carries promotion history.
const EventBotPromoted = "bot_promoted"

var (
	ErrAlreadyActive = errors.New("already active")
	ErrUnknownStatus = errors.New("unrecognized status")
)

// Next returns the status that follows current.
func Next(current Status) (Status, error) {
	i := slices.Index(PromotionOrder, current)
	switch {
	case i < 0:
		return "", fmt.Errorf("%w %q", ErrUnknownStatus, current)
	case i == len(PromotionOrder)-1:
		return "", ErrAlreadyActive
	}
	return PromotionOrder[i+1], nil
}

// DeriveStatus projects a bot's status from activity events: the toStatus
// of its bot_promoted event with the highest id, or draft when none exists.
// Values outside PromotionOrder are returned unchanged so Next can report them.
func DeriveStatus(botName string, events []models.ActivityEvent) Status {
	var (
		latest int64 = -1
		status       = StatusDraft
	)
	for _, ev := range events {
		if ev.EventType != EventBotPromoted || ev.MetaString("botName") != botName {
			continue
		}
		if ev.ID > latest {
			latest = ev.ID
			status = Status(ev.MetaString("toStatus"))
		}
	}
	return status
}

// AlreadyResolvedError reports an attempt to resolve a proposal that left
// pending.
type AlreadyResolvedError struct {
	Status string
}

func (e *AlreadyResolvedError) Error() string {
	return "Proposal is already " + e.Status + "."
}

// CheckPending allows a transition only out of pending. Approved and
// rejected are terminal.
func CheckPending(status string) error {
	if status == models.ProposalPending {
		return nil
	}
	return &AlreadyResolvedError{Status: status}
}
