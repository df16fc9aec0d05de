package service

import (
	"context"
	"testing"
	"time"

	"github.com/libraryaddict/KolFaxBot/internal/kol"
	"github.com/libraryaddict/KolFaxBot/internal/model"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestSettleWindow_WaitsForPreviousDelivery(t *testing.T) {
	session := newFakeSession()

	_, _, admin := testEngine(session, nil, nil)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var slept []time.Duration

	admin.now = fixedClock(base)
	admin.sleep = func(d time.Duration) { slept = append(slept, d) }

	admin.RecordFax(model.FaxEntry{
		ClanID:    200,
		MonsterID: 5,
		PlayerID:  1,
		Completed: base,
	})

	admin.now = fixedClock(base.Add(3 * time.Second))

	req := &FaxRequest{
		Requester: kol.User{ID: 2, Name: "Bob"},
		Monster:   model.Monster{ID: 6, Name: "Goblin King"},
		Target:    &kol.Clan{ID: 200, Name: "Dest"},
		Entry:     &model.FaxEntry{},
	}

	admin.SettleWindow(context.Background(), req)

	if len(slept) != 1 || slept[0] != 7*time.Second {
		t.Fatalf("expected a single 7s wait, got %v", slept)
	}
}

func TestSettleWindow_ChecksEveryRecentDelivery(t *testing.T) {
	session := newFakeSession()

	_, _, admin := testEngine(session, nil, nil)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var slept []time.Duration

	admin.now = fixedClock(base)
	admin.sleep = func(d time.Duration) { slept = append(slept, d) }

	// The requested monster itself went out first; a different one followed
	// and is still settling.
	admin.RecordFax(model.FaxEntry{ClanID: 200, MonsterID: 5, PlayerID: 2, Completed: base})
	admin.RecordFax(model.FaxEntry{ClanID: 200, MonsterID: 6, PlayerID: 1, Completed: base.Add(2 * time.Second)})

	admin.now = fixedClock(base.Add(3 * time.Second))

	req := &FaxRequest{
		Requester: kol.User{ID: 2, Name: "Bob"},
		Monster:   model.Monster{ID: 5, Name: "Goblin"},
		Target:    &kol.Clan{ID: 200, Name: "Dest"},
		Entry:     &model.FaxEntry{},
	}

	admin.SettleWindow(context.Background(), req)

	if len(slept) != 1 || slept[0] != 9*time.Second {
		t.Fatalf("expected a single 9s wait for the later delivery, got %v", slept)
	}
}

func TestSettleWindow_SameMonsterSkipsWait(t *testing.T) {
	session := newFakeSession()

	_, _, admin := testEngine(session, nil, nil)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var slept []time.Duration

	admin.now = fixedClock(base)
	admin.sleep = func(d time.Duration) { slept = append(slept, d) }

	admin.RecordFax(model.FaxEntry{ClanID: 200, MonsterID: 5, PlayerID: 1, Completed: base})

	admin.now = fixedClock(base.Add(time.Second))

	req := &FaxRequest{
		Requester: kol.User{ID: 2, Name: "Bob"},
		Monster:   model.Monster{ID: 5, Name: "Goblin"},
		Target:    &kol.Clan{ID: 200, Name: "Dest"},
		Entry:     &model.FaxEntry{},
	}

	admin.SettleWindow(context.Background(), req)

	if len(slept) != 0 {
		t.Fatalf("a repeat of the same monster should not wait, got %v", slept)
	}
}

func TestSettleWindow_SameRequesterSkipsWait(t *testing.T) {
	session := newFakeSession()

	_, _, admin := testEngine(session, nil, nil)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var slept []time.Duration

	admin.now = fixedClock(base)
	admin.sleep = func(d time.Duration) { slept = append(slept, d) }

	admin.RecordFax(model.FaxEntry{ClanID: 200, MonsterID: 5, PlayerID: 2, Completed: base})

	admin.now = fixedClock(base.Add(time.Second))

	req := &FaxRequest{
		Requester: kol.User{ID: 2, Name: "Bob"},
		Monster:   model.Monster{ID: 6, Name: "Goblin King"},
		Target:    &kol.Clan{ID: 200, Name: "Dest"},
		Entry:     &model.FaxEntry{},
	}

	admin.SettleWindow(context.Background(), req)

	if len(slept) != 0 {
		t.Fatalf("the same requester should not wait, got %v", slept)
	}
}

func TestSettleWindow_ElapsedDelayDoesNotWait(t *testing.T) {
	session := newFakeSession()

	_, _, admin := testEngine(session, nil, nil)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var slept []time.Duration

	admin.now = fixedClock(base)
	admin.sleep = func(d time.Duration) { slept = append(slept, d) }

	admin.RecordFax(model.FaxEntry{ClanID: 200, MonsterID: 5, PlayerID: 1, Completed: base})

	admin.now = fixedClock(base.Add(15 * time.Second))

	req := &FaxRequest{
		Requester: kol.User{ID: 2, Name: "Bob"},
		Monster:   model.Monster{ID: 6, Name: "Goblin King"},
		Target:    &kol.Clan{ID: 200, Name: "Dest"},
		Entry:     &model.FaxEntry{},
	}

	admin.SettleWindow(context.Background(), req)

	if len(slept) != 0 {
		t.Fatalf("a settled delivery should not wait, got %v", slept)
	}
}

func TestPruneLedger_EvictsExpiredAttempts(t *testing.T) {
	session := newFakeSession()

	_, _, admin := testEngine(session, nil, nil)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	admin.now = fixedClock(base)
	admin.RecordFax(model.FaxEntry{ID: "old", Completed: base.Add(-6 * time.Minute)})
	admin.RecordFax(model.FaxEntry{ID: "fresh", Completed: base.Add(-time.Minute)})

	admin.PruneLedger()

	ledger := admin.Ledger()

	if len(ledger) != 1 || ledger[0].ID != "fresh" {
		t.Fatalf("expected only the fresh attempt to remain, got %+v", ledger)
	}
}

func TestRunMaintenance_StaysQuietAfterFax(t *testing.T) {
	session := newFakeSession()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, registry, admin := testEngine(session, nil, nil)

	registry.now = fixedClock(base)
	registry.Update(testClan(300, "Random", 0, base.Add(-30*24*time.Hour)))

	admin.now = fixedClock(base)
	admin.RecordFax(model.FaxEntry{Completed: base})

	session.joins = nil

	admin.RunMaintenance(context.Background())

	if len(session.joins) != 0 {
		t.Fatalf("maintenance should stay idle right after a fax, got joins %v", session.joins)
	}
}

func TestRunMaintenance_ProbesOneStaleClan(t *testing.T) {
	session := newFakeSession()
	session.faxFunc = func(clanID int64, action kol.FaxAction) kol.FaxResult {
		return kol.FaxNoneLoaded
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	engine, registry, admin := testEngine(session, nil, nil)

	engine.now = fixedClock(base)
	registry.now = fixedClock(base)
	registry.Update(testClan(300, "Random", 0, base.Add(-30*24*time.Hour)))
	registry.Update(testClan(301, "Random", 0, base.Add(-20*24*time.Hour)))

	admin.now = fixedClock(base)

	session.joins = nil

	admin.RunMaintenance(context.Background())

	// Only the oldest stale clan gets probed per pass.
	if len(session.joins) == 0 || session.joins[0] != 300 {
		t.Fatalf("expected the oldest stale clan probed first, got joins %v", session.joins)
	}

	for _, id := range session.joins[1:] {
		if id == 301 {
			t.Fatalf("only one stale clan should be probed per pass, got joins %v", session.joins)
		}
	}

	probed, _ := registry.ClanByID(300)

	if !probed.LastChecked.Equal(base) {
		t.Fatalf("probe should refresh the check stamp, got %v", probed.LastChecked)
	}

	// More stale clans remain, so the interval stamp stays untouched and the
	// next pass is allowed to run immediately.
	session.joins = nil

	admin.RunMaintenance(context.Background())

	if len(session.joins) == 0 || session.joins[0] != 301 {
		t.Fatalf("expected the next stale clan probed, got joins %v", session.joins)
	}
}

func TestRunMaintenance_StampsFailedProbe(t *testing.T) {
	session := newFakeSession()
	session.joinFunc = func(clan kol.Clan) kol.JoinResult {
		if clan.ID == 300 {
			return kol.JoinNotWhitelisted
		}

		return kol.Joined
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, registry, admin := testEngine(session, nil, nil)

	registry.now = fixedClock(base)
	registry.Update(testClan(300, "Random", 0, base.Add(-30*24*time.Hour)))

	admin.now = fixedClock(base)

	admin.RunMaintenance(context.Background())

	probed, _ := registry.ClanByID(300)

	if !probed.LastChecked.Equal(base) {
		t.Fatalf("a failed probe should still be stamped, got %v", probed.LastChecked)
	}
}

func TestRunMaintenance_HonorsInterval(t *testing.T) {
	session := newFakeSession()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, registry, admin := testEngine(session, nil, nil)

	registry.now = fixedClock(base)
	admin.now = fixedClock(base)

	admin.RunMaintenance(context.Background())

	// A stale clan appearing right after a completed pass waits out the
	// interval.
	registry.Update(testClan(300, "Random", 0, base.Add(-30*24*time.Hour)))

	session.joins = nil

	admin.now = fixedClock(base.Add(time.Hour))
	admin.RunMaintenance(context.Background())

	if len(session.joins) != 0 {
		t.Fatalf("maintenance ran before the interval elapsed, joins %v", session.joins)
	}

	admin.now = fixedClock(base.Add(3 * time.Hour))
	admin.RunMaintenance(context.Background())

	found := false

	for _, id := range session.joins {
		if id == 300 {
			found = true
		}
	}

	if !found {
		t.Fatalf("expected the stale clan probed after the interval, joins %v", session.joins)
	}
}

func TestReconcileWhitelists_RequiresConfiguredClans(t *testing.T) {
	session := newFakeSession()
	session.whitelists = []kol.Clan{{ID: 800, Name: "OnlyFax Home"}}

	_, _, admin := testEngine(session, nil, nil)

	if err := admin.ReconcileWhitelists(context.Background()); err == nil {
		t.Fatalf("expected an error when the dump clan is missing")
	}
}

func TestReconcileWhitelists_DropsInaccessibleAndProbesUnknown(t *testing.T) {
	session := newFakeSession()
	session.faxFunc = func(clanID int64, action kol.FaxAction) kol.FaxResult {
		return kol.FaxNoneLoaded
	}
	session.whitelists = []kol.Clan{
		{ID: 500, Name: "Newcomer"},
		{ID: 800, Name: "OnlyFax Home"},
		{ID: 900, Name: "Fax Dump"},
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, registry, admin := testEngine(session, nil, nil)

	registry.Update(testClan(700, "Gone", 3, base))

	session.joins = nil

	if err := admin.ReconcileWhitelists(context.Background()); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	if _, ok := registry.ClanByID(700); ok {
		t.Fatalf("clan 700 is no longer accessible and should be dropped")
	}

	if _, ok := registry.ClanByID(500); !ok {
		t.Fatalf("the new whitelist should have been probed into the registry")
	}

	if len(session.joins) == 0 || session.joins[0] != 500 {
		t.Fatalf("expected the unknown clan probed, joins %v", session.joins)
	}
}
