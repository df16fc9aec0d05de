package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/libraryaddict/KolFaxBot/internal/config"
	"github.com/libraryaddict/KolFaxBot/internal/kol"
	"github.com/libraryaddict/KolFaxBot/internal/model"
)

const (
	// How long concluded attempts stay in the ledger.
	ledgerRetention = 5 * time.Minute

	// Minimum time a delivered fax gets to be collected before the same
	// destination receives a different monster.
	settleDelay = 10 * time.Second

	// Maintenance stays out of the way while requests are coming in, and
	// never runs more often than this.
	maintenanceQuiet    = 10 * time.Minute
	maintenanceInterval = 2 * time.Hour
)

// Administration owns the background consistency work: the completed-request
// ledger, whitelist reconciliation, staleness probes and the fortune teller
// side task. The engine is attached after construction since each needs the
// other.
type Administration struct {
	session  kol.Session
	registry *ClanRegistry
	catalog  *MonsterCatalog
	engine   *FaxEngine

	defaultClan int64
	dumpClan    int64

	mu        sync.Mutex
	faxes     []model.FaxEntry
	lastAdmin time.Time
	lastFax   time.Time

	now   func() time.Time
	sleep func(time.Duration)
}

func NewAdministration(session kol.Session, registry *ClanRegistry, catalog *MonsterCatalog,
	cfg config.BotConfig) *Administration {
	return &Administration{
		session:     session,
		registry:    registry,
		catalog:     catalog,
		defaultClan: cfg.DefaultClan,
		dumpClan:    cfg.FaxDumpClan,
		now:         time.Now,
		sleep:       time.Sleep,
	}
}

// AttachEngine wires in the engine once both exist.
func (a *Administration) AttachEngine(engine *FaxEngine) {
	a.engine = engine
}

// RecordFax appends a concluded attempt to the ledger.
func (a *Administration) RecordFax(entry model.FaxEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.faxes = append(a.faxes, entry)
	a.lastFax = a.now()
}

// NoteFaxServed stamps the time of the last successful delivery.
func (a *Administration) NoteFaxServed() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.lastFax = a.now()
}

// Ledger returns a snapshot of the retained attempts, newest last.
func (a *Administration) Ledger() []model.FaxEntry {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]model.FaxEntry(nil), a.faxes...)
}

// PruneLedger evicts attempts past the retention window. Runs before each
// inbound message is processed.
func (a *Administration) PruneLedger() {
	cutoff := a.now().Add(-ledgerRetention)

	a.mu.Lock()
	defer a.mu.Unlock()

	for len(a.faxes) > 0 {
		stamp := a.faxes[0].Completed

		if stamp.IsZero() {
			stamp = a.faxes[0].Requested
		}

		if !stamp.Before(cutoff) {
			break
		}

		a.faxes = a.faxes[1:]
	}
}

// SettleWindow blocks until a previous delivery of a different monster to the
// request's destination clan has had its settle delay. Same monster or same
// requester means nobody can read a stale photocopy, so those skip the wait.
func (a *Administration) SettleWindow(ctx context.Context, req *FaxRequest) {
	if req.Target == nil || req.Entry == nil {
		return
	}

	a.mu.Lock()
	faxes := append([]model.FaxEntry(nil), a.faxes...)
	a.mu.Unlock()

	var wait time.Duration

	for _, fax := range faxes {
		if fax.ClanID != req.Target.ID {
			continue
		}

		if fax.MonsterID == req.Monster.ID || fax.PlayerID == req.Requester.ID {
			continue
		}

		stamp := fax.Completed

		if stamp.IsZero() {
			stamp = fax.Requested
		}

		if pending := stamp.Add(settleDelay).Sub(a.now()); pending > wait {
			wait = pending
		}
	}

	if wait <= 0 {
		return
	}

	log.Printf("[Administration] Waiting %.1fs for the last fax to %s to settle",
		wait.Seconds(), req.Target.Name)
	a.sleep(wait)
}

// ReconcileWhitelists fetches the accessible clans, drops registry records we
// can no longer reach and probes the ones we don't know yet. The default and
// dump clans must always be accessible; losing either is a configuration
// error worth stopping for.
func (a *Administration) ReconcileWhitelists(ctx context.Context) error {
	whitelists, err := a.session.Whitelists(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch whitelists: %w", err)
	}

	for _, required := range []int64{a.defaultClan, a.dumpClan} {
		found := false

		for _, clan := range whitelists {
			if clan.ID == required {
				found = true

				break
			}
		}

		if !found {
			return fmt.Errorf("configured clan %d is not in the bot's whitelists", required)
		}
	}

	ids := make([]int64, 0, len(whitelists))

	for _, clan := range whitelists {
		ids = append(ids, clan.ID)
	}

	a.registry.RemoveInaccessible(ids)

	unknown := a.registry.UnknownAmong(whitelists)

	if len(unknown) == 0 {
		return nil
	}

	// Probe the configured clans before anything else.
	ordered := make([]kol.Clan, 0, len(unknown))

	for _, clan := range unknown {
		if clan.ID == a.defaultClan || clan.ID == a.dumpClan {
			ordered = append(ordered, clan)
		}
	}

	for _, clan := range unknown {
		if clan.ID != a.defaultClan && clan.ID != a.dumpClan {
			ordered = append(ordered, clan)
		}
	}

	defer a.engine.JoinDefaultClan(ctx)

	for _, clan := range ordered {
		a.engine.CheckClanInfo(ctx, clan)
	}

	return nil
}

// RefreshAll re-probes every whitelisted clan. Used by the refresh command.
func (a *Administration) RefreshAll(ctx context.Context) error {
	whitelists, err := a.session.Whitelists(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch whitelists: %w", err)
	}

	defer a.engine.JoinDefaultClan(ctx)

	for _, clan := range whitelists {
		a.engine.CheckClanInfo(ctx, clan)
	}

	return nil
}

// RunMaintenance performs one slice of background upkeep: at most one stale
// clan probe, then the fortune teller. It stays idle while requests are
// active so a refresh never delays a fax.
func (a *Administration) RunMaintenance(ctx context.Context) {
	a.mu.Lock()
	lastFax, lastAdmin := a.lastFax, a.lastAdmin
	a.mu.Unlock()

	if !lastFax.IsZero() && a.now().Before(lastFax.Add(maintenanceQuiet)) {
		return
	}

	if a.now().Before(lastAdmin.Add(maintenanceInterval)) {
		return
	}

	stale := a.registry.StaleClans()

	if len(stale) > 0 {
		clan := stale[0]

		a.engine.CheckClanInfo(ctx, kol.Clan{ID: clan.ID, Name: clan.Name})

		// The probe may have failed before it could stamp the record; stamp
		// it anyway so one bad clan never blocks future maintenance.
		if current, ok := a.registry.ClanByID(clan.ID); ok &&
			current.LastChecked.Equal(clan.LastChecked) {
			current.LastChecked = a.now()
			a.registry.Update(current)

			log.Printf("[Administration] Probe of %s did not complete, skipping it for now", clan.Name)
		}
	}

	// One clan at a time; come back for the rest later.
	if len(stale) > 1 {
		return
	}

	if len(stale) > 0 {
		a.engine.JoinDefaultClan(ctx)
	}

	a.CheckFortuneTeller(ctx)

	a.mu.Lock()
	a.lastAdmin = a.now()
	a.mu.Unlock()
}

// CheckFortuneTeller clears pending consults, but only from the home clan.
func (a *Administration) CheckFortuneTeller(ctx context.Context) {
	current := a.session.CurrentClan()

	if current == nil || current.ID != a.defaultClan {
		return
	}

	a.session.CheckFortuneTeller(ctx)
}
