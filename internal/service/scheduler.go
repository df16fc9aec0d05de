package service

import (
	"context"
	"log"
	"regexp"
	"time"

	"github.com/libraryaddict/KolFaxBot/internal/config"
	"github.com/libraryaddict/KolFaxBot/internal/kol"
)

const (
	// Rollover blackout: no remote calls in the last seconds of the day or
	// the first minutes after, the servers are down or lying.
	blackoutBefore = 10
	blackoutAfter  = 5 * 60

	// While logged out, a login is attempted every tenth tick.
	loginEvery = 10
)

var safeAccountName = regexp.MustCompile(`^[a-zA-Z\d _]+$`)

// Scheduler is the single heartbeat loop driving the whole bot: session
// lifecycle, the daily bootstrap, the rollover window and message polling.
// Ticks never overlap; a slow beat simply drops the ticks it missed.
type Scheduler struct {
	session    kol.Session
	engine     *FaxEngine
	admin      *Administration
	registry   *ClanRegistry
	catalog    *MonsterCatalog
	dispatcher *Dispatcher
	rollover   *RolloverTask

	interval    time.Duration
	defaultClan int64
	maintained  []config.Credentials

	// newSession builds sessions for maintained side accounts.
	newSession func(username, password string) kol.Session

	ticks       int
	lastSeenDay int

	now func() time.Time
}

func NewScheduler(session kol.Session, engine *FaxEngine, admin *Administration,
	registry *ClanRegistry, catalog *MonsterCatalog, dispatcher *Dispatcher,
	rollover *RolloverTask, cfg config.BotConfig) *Scheduler {
	return &Scheduler{
		session:     session,
		engine:      engine,
		admin:       admin,
		registry:    registry,
		catalog:     catalog,
		dispatcher:  dispatcher,
		rollover:    rollover,
		interval:    cfg.HeartbeatInterval,
		defaultClan: cfg.DefaultClan,
		maintained:  cfg.MaintainAccountLogins(),
		newSession: func(username, password string) kol.Session {
			return kol.NewClient(username, password)
		},
		now: time.Now,
	}
}

// Run beats until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick is one heartbeat.
func (s *Scheduler) Tick(ctx context.Context) {
	s.ticks = (s.ticks + 1) % 100

	now := s.now()

	if kol.SecondsToRollover(now) < blackoutBefore ||
		kol.SecondsElapsedInDay(now) < blackoutAfter {
		s.session.SetLoggedOut()

		return
	}

	if s.session.IsLoggedOut() {
		if s.ticks%loginEvery != 0 {
			return
		}

		if err := s.session.LogIn(ctx); err != nil {
			log.Printf("[Scheduler] Login failed: %v", err)

			return
		}

		if s.session.IsLoggedOut() {
			return
		}
	}

	if s.lastSeenDay != kol.Day(now) {
		s.bootstrap(ctx)

		return
	}

	if kol.IsRolloverFaxWindow(s.now()) {
		s.rollover.Run(ctx)
	}

	s.dispatcher.PollMessages(ctx)
}

// bootstrap runs once per game day: recover from a stuck fight, get home,
// reconcile whitelists and refresh whatever went stale overnight.
func (s *Scheduler) bootstrap(ctx context.Context) {
	s.scheduleAccountMaintenance(ctx)

	if s.session.IsStuckInFight() {
		if kol.SecondsToNearestRollover(s.now()) < 5*60 {
			log.Printf("[Scheduler] Too soon to rollover to try escape the fight we're in")

			return
		}

		log.Printf("[Scheduler] Stuck in a fight at the start of a new day, trying to leave")
		s.session.TryEscapeFight(ctx, "Stuck in fight after rollover")

		if s.session.IsStuckInFight() {
			log.Printf("[Scheduler] Still stuck in fight, skipping the rest of the new day")

			return
		}
	}

	if s.session.CurrentClan() == nil {
		if _, err := s.session.MyClan(ctx); err != nil {
			log.Printf("[Scheduler] Failed to fetch current clan: %v", err)
		}
	}

	if current := s.session.CurrentClan(); current == nil || current.ID != s.defaultClan {
		s.engine.JoinDefaultClan(ctx)
	}

	if err := s.admin.ReconcileWhitelists(ctx); err != nil {
		log.Printf("[Scheduler] Whitelist reconcile failed: %v", err)
	}

	s.admin.CheckFortuneTeller(ctx)

	if s.registry.HasUnknownMonster(s.catalog.Known) {
		if _, err := s.catalog.TryRefresh(ctx); err != nil {
			log.Printf("[Scheduler] Monster refresh failed: %v", err)
		}
	}

	s.lastSeenDay = kol.Day(s.now())
	log.Printf("[Scheduler] Finished running new day")
}

// scheduleAccountMaintenance logs the maintained side accounts in once a
// day. Near rollover it waits half an hour first so the logins land on the
// new day.
func (s *Scheduler) scheduleAccountMaintenance(ctx context.Context) {
	if len(s.maintained) == 0 {
		return
	}

	delay := time.Duration(0)

	if kol.IsRolloverRisk(s.now(), 15) {
		delay = 30 * time.Minute
	}

	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		if kol.IsRolloverRisk(time.Now(), 13) {
			return
		}

		for _, account := range s.maintained {
			if !safeAccountName.MatchString(account.Username) {
				log.Printf("[Scheduler] Not going to try logging into '%s'", account.Username)

				continue
			}

			side := s.newSession(account.Username, account.Password)

			if err := side.LogIn(ctx); err != nil {
				log.Printf("[Scheduler] Failed to keep %s active: %v", account.Username, err)
			}
		}
	}()
}
