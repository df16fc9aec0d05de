package service

import (
	"github.com/libraryaddict/KolFaxBot/internal/kol"
	"github.com/libraryaddict/KolFaxBot/internal/model"
)

// Outcome is the result of one pass through the fulfillment pipeline.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeTryAgain
	OutcomeSuccess

	// The machine reported we already held a fax. The held fax is dumped and
	// the whole acquisition restarts from the top.
	outcomeRestart
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFailed:
		return "Failed"
	case OutcomeTryAgain:
		return "Try Again"
	case OutcomeSuccess:
		return "Success"
	default:
		return "Restart"
	}
}

// FaxRequest is one end-to-end fulfillment attempt. Player requests carry a
// requester and a ledger entry; rollover identification runs are silent, pin
// their source clan and have no delivery target.
type FaxRequest struct {
	Requester kol.User
	Monster   model.Monster

	// Target is the delivery destination, resolved once. Nil means the fax
	// stays in hand when the pipeline finishes.
	Target *kol.Clan

	// FixedSource pins the source clan instead of registry selection.
	FixedSource *kol.Clan

	// Silent suppresses user notifications.
	Silent bool

	// HasFax tracks whether the bot currently holds a photocopy.
	HasFax bool

	Entry *model.FaxEntry
}

// RequesterName names the requester for logs.
func (r *FaxRequest) RequesterName() string {
	if r.Requester.Name == "" {
		return "<Fax Rollover>"
	}

	return r.Requester.Name
}
