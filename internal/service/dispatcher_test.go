package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/libraryaddict/KolFaxBot/internal/kol"
)

// quietTime is midday in game terms, nowhere near rollover.
func quietTime() time.Time {
	return time.Unix(1044847800, 0).Add(8600*24*time.Hour + 12*time.Hour)
}

func testDispatcher(session *fakeSession, controllers string) *Dispatcher {
	engine, _, admin := testEngine(session, nil, goblinCatalog())

	cfg := testBotConfig()
	cfg.Controllers = controllers

	d := NewDispatcher(session, engine, admin, cfg)
	d.now = fixedClock(quietTime())

	return d
}

func countSent(session *fakeSession, fragment string) int {
	count := 0

	for _, msg := range session.sent {
		if strings.Contains(msg, fragment) {
			count++
		}
	}

	return count
}

func TestProcessMessage_SpamSuppression(t *testing.T) {
	session := newFakeSession()

	d := testDispatcher(session, "")

	base := quietTime()
	bob := kol.User{ID: 2, Name: "Bob"}
	msg := kol.Message{Type: kol.MessagePrivate, Who: &bob, Text: "help"}

	d.now = fixedClock(base)
	d.ProcessMessage(context.Background(), msg)

	if countSent(session, "welcome to OnlyFax") != 1 {
		t.Fatalf("first message should be processed, sent %v", session.sent)
	}

	// Two seconds later: suppressed, one warning.
	d.now = fixedClock(base.Add(2 * time.Second))
	d.ProcessMessage(context.Background(), msg)

	if countSent(session, "welcome to OnlyFax") != 1 {
		t.Fatalf("rapid repeat should be suppressed, sent %v", session.sent)
	}

	if countSent(session, "slow down") != 1 {
		t.Fatalf("expected a single spam warning, sent %v", session.sent)
	}

	// Still inside the warn cooldown: suppressed silently.
	d.now = fixedClock(base.Add(3 * time.Second))
	d.ProcessMessage(context.Background(), msg)

	if countSent(session, "slow down") != 1 {
		t.Fatalf("second warning inside the cooldown, sent %v", session.sent)
	}

	// Suppressed messages never advance the window; six seconds after the
	// first processed message Bob is welcome again.
	d.now = fixedClock(base.Add(6 * time.Second))
	d.ProcessMessage(context.Background(), msg)

	if countSent(session, "welcome to OnlyFax") != 2 {
		t.Fatalf("message after the window should be processed, sent %v", session.sent)
	}
}

func TestProcessMessage_RefusesNearRollover(t *testing.T) {
	session := newFakeSession()

	d := testDispatcher(session, "")

	// One minute before rollover.
	d.now = fixedClock(time.Unix(1044847800, 0).Add(8600*24*time.Hour - time.Minute))

	bob := kol.User{ID: 2, Name: "Bob"}

	d.ProcessMessage(context.Background(), kol.Message{
		Type: kol.MessagePrivate, Who: &bob, Text: "goblin",
	})

	if countSent(session, "Rollover is near") != 1 {
		t.Fatalf("expected the rollover refusal, sent %v", session.sent)
	}

	if len(session.joins) != 0 {
		t.Fatalf("no fax work should start near rollover, joins %v", session.joins)
	}
}

func TestProcessMessage_IgnoresPublicAndEmpty(t *testing.T) {
	session := newFakeSession()

	d := testDispatcher(session, "")

	bob := kol.User{ID: 2, Name: "Bob"}

	d.ProcessMessage(context.Background(), kol.Message{
		Type: kol.MessagePublic, Who: &bob, Text: "goblin",
	})
	d.ProcessMessage(context.Background(), kol.Message{
		Type: kol.MessagePrivate, Who: &bob, Text: "   ",
	})

	if len(session.sent) != 0 || len(session.joins) != 0 {
		t.Fatalf("nothing should happen, sent %v joins %v", session.sent, session.joins)
	}
}

func TestProcessMessage_RestrictedCommandFallsThrough(t *testing.T) {
	session := newFakeSession()

	d := testDispatcher(session, "")

	bob := kol.User{ID: 2, Name: "Bob"}

	d.ProcessMessage(context.Background(), kol.Message{
		Type: kol.MessagePrivate, Who: &bob, Text: "refresh all",
	})

	// Not a controller, so the text is treated as a monster request.
	if countSent(session, "do not recognize") != 1 {
		t.Fatalf("expected the text treated as a fax request, sent %v", session.sent)
	}
}

func TestProcessMessage_RefreshAllForController(t *testing.T) {
	session := newFakeSession()
	session.whitelists = []kol.Clan{
		{ID: 800, Name: "OnlyFax Home"},
		{ID: 900, Name: "Fax Dump"},
	}
	session.faxFunc = func(clanID int64, action kol.FaxAction) kol.FaxResult {
		return kol.FaxNoneLoaded
	}

	d := testDispatcher(session, "3")

	admin := kol.User{ID: 3, Name: "Admin"}

	d.ProcessMessage(context.Background(), kol.Message{
		Type: kol.MessagePrivate, Who: &admin, Text: "refresh all",
	})

	if countSent(session, "have been refreshed") != 1 {
		t.Fatalf("expected the refresh confirmation, sent %v", session.sent)
	}

	for _, want := range []int64{800, 900} {
		found := false

		for _, id := range session.joins {
			if id == want {
				found = true
			}
		}

		if !found {
			t.Fatalf("expected clan %d probed, joins %v", want, session.joins)
		}
	}
}

func TestHandleEvent_WhitelistChangeTriggersReconcile(t *testing.T) {
	session := newFakeSession()
	session.whitelists = []kol.Clan{
		{ID: 500, Name: "Newcomer"},
		{ID: 800, Name: "OnlyFax Home"},
		{ID: 900, Name: "Fax Dump"},
	}
	session.faxFunc = func(clanID int64, action kol.FaxAction) kol.FaxResult {
		return kol.FaxNoneLoaded
	}

	d := testDispatcher(session, "")

	d.ProcessMessage(context.Background(), kol.Message{
		Type: kol.MessageEvent, Text: "Somebody added you to a clan whitelist",
	})

	found := false

	for _, id := range session.joins {
		if id == 500 {
			found = true
		}
	}

	if !found {
		t.Fatalf("expected the new whitelist probed, joins %v", session.joins)
	}
}

func TestHandleEvent_VIPLoungeSkipsReconcile(t *testing.T) {
	session := newFakeSession()
	session.whitelists = []kol.Clan{{ID: 500, Name: "Newcomer"}}

	d := testDispatcher(session, "")

	d.ProcessMessage(context.Background(), kol.Message{
		Type: kol.MessageEvent, Text: "clan_viplounge.php?preaction=lovetester",
	})

	if len(session.joins) != 0 {
		t.Fatalf("a fortune teller ping should not touch the whitelists, joins %v", session.joins)
	}
}

func TestPollMessages_KeepAliveThrottled(t *testing.T) {
	session := newFakeSession()

	d := testDispatcher(session, "")

	base := quietTime()

	d.now = fixedClock(base)
	d.PollMessages(context.Background())

	d.now = fixedClock(base.Add(10 * time.Second))
	d.PollMessages(context.Background())

	if len(session.macros) != 1 {
		t.Fatalf("expected a single keepalive, got %v", session.macros)
	}

	d.now = fixedClock(base.Add(40 * time.Second))
	d.PollMessages(context.Background())

	if len(session.macros) != 2 {
		t.Fatalf("expected a second keepalive after the interval, got %v", session.macros)
	}
}

func TestPollMessages_ProcessesInbox(t *testing.T) {
	session := newFakeSession()

	d := testDispatcher(session, "")

	bob := kol.User{ID: 2, Name: "Bob"}
	session.inbox = []kol.Message{
		{Type: kol.MessagePrivate, Who: &bob, Text: "help"},
	}

	d.PollMessages(context.Background())

	if countSent(session, "welcome to OnlyFax") != 1 {
		t.Fatalf("inbox message should be handled, sent %v", session.sent)
	}
}
