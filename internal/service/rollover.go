package service

import (
	"context"
	"log"
	"time"

	"github.com/libraryaddict/KolFaxBot/internal/config"
	"github.com/libraryaddict/KolFaxBot/internal/kol"
	"github.com/libraryaddict/KolFaxBot/internal/model"
)

// RolloverTask identifies ambiguous fax monsters in the last seconds before
// the daily reset. It pulls the fax off a source clan, starts a fight with it
// to learn the true monster id, and lets rollover end the fight before any
// turns are spent.
type RolloverTask struct {
	session  kol.Session
	registry *ClanRegistry
	catalog  *MonsterCatalog
	engine   *FaxEngine

	enabled   bool
	dangerous bool

	lastRun int

	now func() time.Time
}

func NewRolloverTask(session kol.Session, registry *ClanRegistry, catalog *MonsterCatalog,
	engine *FaxEngine, cfg config.BotConfig) *RolloverTask {
	return &RolloverTask{
		session:   session,
		registry:  registry,
		catalog:   catalog,
		engine:    engine,
		enabled:   cfg.RunFaxRollover,
		dangerous: cfg.RunDangerousFaxRollover,
		lastRun:   -1,
		now:       time.Now,
	}
}

// Run attempts the identification pass. At most one pass per game day, only
// inside the pre-rollover window and only with an active session.
func (t *RolloverTask) Run(ctx context.Context) {
	if !t.enabled {
		return
	}

	if t.lastRun == kol.Day(t.now()) {
		return
	}

	if !kol.IsRolloverFaxWindow(t.now()) {
		return
	}

	if t.session.IsLoggedOut() {
		log.Printf("[RolloverTask] Wanted to run a fax rollover, but we're not logged in")

		return
	}

	t.lastRun = kol.Day(t.now())

	if !t.dangerous && !t.session.HasRolloverProtection(ctx) {
		log.Printf("[RolloverTask] Wanted to run a fax rollover, but we have no rollover protection")

		return
	}

	cutoff := t.now()

	attempted := false

	for kol.IsRolloverFaxWindow(t.now()) {
		clan, ok := t.registry.RolloverTarget(t.catalog.IsAmbiguous)

		// Anything stamped after cutoff was already tried this pass.
		if !ok || clan.LastChecked.After(cutoff) {
			break
		}

		attempted = true

		if t.attemptIdentification(ctx, clan) || t.session.IsStuckInFight() {
			break
		}
	}

	if !attempted {
		log.Printf("[RolloverTask] Not doing a rollover fax, no targets")
	}
}

// attemptIdentification pulls the clan's fax and fights it. Reports whether
// the pass should stop.
func (t *RolloverTask) attemptIdentification(ctx context.Context, clan model.Clan) bool {
	clan.LastChecked = t.now()
	t.registry.Update(clan)

	monster, _ := t.catalog.ByID(clan.FaxMonsterID)

	req := &FaxRequest{
		Monster:     monster,
		FixedSource: &kol.Clan{ID: clan.ID, Name: clan.Name},
		Silent:      true,
	}

	status := t.engine.AcquireFax(ctx, req)

	if status == OutcomeFailed {
		return true
	}

	t.engine.JoinDefaultClan(ctx)

	if !req.HasFax || status != OutcomeSuccess {
		return false
	}

	foughtID, err := t.session.StartFaxFight(ctx)
	if err != nil || foughtID == 0 {
		log.Printf("[RolloverTask] Failed to start a fax fight against %s: %v",
			monster.PreferredName(), err)

		return false
	}

	t.registry.SetFaxMonster(clan.ID, foughtID)
	log.Printf("[RolloverTask] Identified the fax in %s as monster %d", clan.Name, foughtID)

	return true
}
