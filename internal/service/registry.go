package service

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/libraryaddict/KolFaxBot/internal/kol"
	"github.com/libraryaddict/KolFaxBot/internal/model"
	"github.com/libraryaddict/KolFaxBot/internal/repository"
)

// PickPolicy breaks ties between clans offering the same monster.
type PickPolicy string

const (
	// PickOldestFirst trusts the fax that has been unchanged longest.
	PickOldestFirst PickPolicy = "oldest"
	// PickNewestFirst trusts the most recently observed fax.
	PickNewestFirst PickPolicy = "newest"
)

// How long a clan may go unprobed before maintenance revisits it.
const staleAfter = 14 * 24 * time.Hour

// ClanRegistry is the in-memory catalog of clans the bot can reach and what
// each fax machine held last time we looked. Only the actor goroutine writes;
// report handlers read concurrently. Persistence is fire-and-forget so a slow
// disk never delays a fax.
type ClanRegistry struct {
	mu     sync.RWMutex
	repo   repository.ClanRepository
	clans  map[int64]*model.Clan
	dirty  bool
	policy PickPolicy

	now      func() time.Time
	onChange func()
}

// NewClanRegistry creates an empty registry. repo may be nil for tests.
func NewClanRegistry(repo repository.ClanRepository, policy PickPolicy) *ClanRegistry {
	if policy == "" {
		policy = PickOldestFirst
	}

	return &ClanRegistry{
		repo:   repo,
		clans:  make(map[int64]*model.Clan),
		policy: policy,
		now:    time.Now,
	}
}

// SetOnChange registers a hook fired whenever the registry changes shape,
// used to invalidate the report cache.
func (r *ClanRegistry) SetOnChange(fn func()) {
	r.onChange = fn
}

// Load replaces the in-memory state with the stored records.
func (r *ClanRegistry) Load(ctx context.Context) error {
	clans, err := r.repo.LoadClans(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.clans = make(map[int64]*model.Clan, len(clans))

	for i := range clans {
		clan := clans[i]
		r.clans[clan.ID] = &clan
	}
	r.mu.Unlock()

	sources := 0
	monsters := map[int64]bool{}

	for i := range clans {
		if clans[i].Type() != model.ClanTypeFaxSource {
			continue
		}

		sources++

		if clans[i].HasFax() {
			monsters[clans[i].FaxMonsterID] = true
		}
	}

	log.Printf("[ClanRegistry] Loaded %d clans, of which %d are fax sources and contain %d different monsters",
		len(clans), sources, len(monsters))

	return nil
}

// ClanByID returns a copy of the record for the given clan.
func (r *ClanRegistry) ClanByID(id int64) (model.Clan, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clan, ok := r.clans[id]
	if !ok {
		return model.Clan{}, false
	}

	return *clan, true
}

// Clans returns a snapshot of every record, ordered by clan id.
func (r *ClanRegistry) Clans() []model.Clan {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clans := make([]model.Clan, 0, len(r.clans))

	for _, clan := range r.clans {
		clans = append(clans, *clan)
	}

	sort.Slice(clans, func(i, j int) bool { return clans[i].ID < clans[j].ID })

	return clans
}

// ClanByMonster selects the clan to pull the given monster from. Fax sources
// win over random clans; among equals the tie-break follows the pick policy.
func (r *ClanRegistry) ClanByMonster(monsterID int64) (model.Clan, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var candidates []*model.Clan

	for _, clan := range r.clans {
		if clan.FaxMonsterID == monsterID {
			candidates = append(candidates, clan)
		}
	}

	if len(candidates) == 0 {
		return model.Clan{}, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		c1, c2 := candidates[i], candidates[j]

		source1 := c1.Type() == model.ClanTypeFaxSource
		source2 := c2.Type() == model.ClanTypeFaxSource

		if source1 != source2 {
			return source1
		}

		t1, t2 := c1.FaxLastChanged, c2.FaxLastChanged

		if t1.Equal(t2) {
			return c1.ID < c2.ID
		}

		// Unknown ages sort last regardless of policy.
		if t1.IsZero() || t2.IsZero() {
			return t2.IsZero()
		}

		if r.policy == PickNewestFirst {
			return t1.After(t2)
		}

		return t1.Before(t2)
	})

	return *candidates[0], true
}

// Update merges the mutable fields of clan into the registry, inserting a new
// record when the clan is unknown. The dirty flag trips on structural change:
// a new clan or a changed fax monster.
func (r *ClanRegistry) Update(clan model.Clan) {
	r.mu.Lock()

	existing, ok := r.clans[clan.ID]
	if ok {
		if existing.FaxMonsterID != clan.FaxMonsterID {
			r.markDirtyLocked()
		}

		existing.Name = clan.Name
		existing.Title = clan.Title
		existing.FaxMonsterID = clan.FaxMonsterID
		existing.FaxLastChanged = clan.FaxLastChanged
		existing.LastChecked = clan.LastChecked
		clan = *existing
	} else {
		inserted := clan
		r.clans[clan.ID] = &inserted
		r.markDirtyLocked()
	}

	r.mu.Unlock()

	r.persist(clan)
}

// SetFaxMonster corrects what a clan is known to offer. A monsterID of 0
// clears the mapping. The last-changed stamp only moves when the monster
// actually changes.
func (r *ClanRegistry) SetFaxMonster(clanID, monsterID int64) {
	r.mu.Lock()

	clan, ok := r.clans[clanID]
	if !ok {
		r.mu.Unlock()

		return
	}

	if clan.FaxMonsterID != monsterID {
		clan.FaxMonsterID = monsterID
		clan.FaxLastChanged = r.now()
		r.markDirtyLocked()
	}

	snapshot := *clan
	r.mu.Unlock()

	r.persist(snapshot)
}

// RemoveInaccessible deletes every record whose clan id is absent from the
// freshly fetched whitelist, from memory and from the store.
func (r *ClanRegistry) RemoveInaccessible(accessibleIDs []int64) {
	accessible := make(map[int64]bool, len(accessibleIDs))

	for _, id := range accessibleIDs {
		accessible[id] = true
	}

	r.mu.Lock()

	var removed []int64

	for id := range r.clans {
		if !accessible[id] {
			delete(r.clans, id)
			removed = append(removed, id)
		}
	}

	if len(removed) > 0 {
		r.markDirtyLocked()
	}

	r.mu.Unlock()

	for _, id := range removed {
		r.delete(id)
	}
}

// StaleClans returns records unverified for more than two weeks, oldest
// first.
func (r *ClanRegistry) StaleClans() []model.Clan {
	cutoff := r.now().Add(-staleAfter)

	r.mu.RLock()

	var stale []model.Clan

	for _, clan := range r.clans {
		if clan.LastChecked.Before(cutoff) {
			stale = append(stale, *clan)
		}
	}

	r.mu.RUnlock()

	sort.Slice(stale, func(i, j int) bool {
		return stale[i].LastChecked.Before(stale[j].LastChecked)
	})

	return stale
}

// UnknownAmong returns the whitelisted clans we either do not know at all or
// do not know our title in.
func (r *ClanRegistry) UnknownAmong(whitelist []kol.Clan) []kol.Clan {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var unknown []kol.Clan

	for _, clan := range whitelist {
		found, ok := r.clans[clan.ID]

		if !ok || found.Title == "" {
			unknown = append(unknown, clan)
		}
	}

	return unknown
}

// HasUnknownMonster reports whether any clan offers a monster id the catalog
// doesn't recognize, which triggers an opportunistic catalog refresh.
func (r *ClanRegistry) HasUnknownMonster(known func(int64) bool) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, clan := range r.clans {
		if clan.HasFax() && !known(clan.FaxMonsterID) {
			return true
		}
	}

	return false
}

// RolloverTarget selects the next clan worth identifying in the pre-rollover
// window: the least recently verified fax source whose monster is ambiguous
// and not pinned down by any other clan's mapping.
func (r *ClanRegistry) RolloverTarget(isAmbiguous func(int64) bool) (model.Clan, bool) {
	r.mu.RLock()

	var targets []model.Clan

	for _, clan := range r.clans {
		if clan.Type() != model.ClanTypeFaxSource || !clan.HasFax() {
			continue
		}

		if !isAmbiguous(clan.FaxMonsterID) {
			continue
		}

		pinned := false

		for _, other := range r.clans {
			if other.ID != clan.ID && other.FaxMonsterID == clan.FaxMonsterID {
				pinned = true

				break
			}
		}

		if !pinned {
			targets = append(targets, *clan)
		}
	}

	r.mu.RUnlock()

	if len(targets) == 0 {
		return model.Clan{}, false
	}

	sort.Slice(targets, func(i, j int) bool {
		return targets[i].LastChecked.Before(targets[j].LastChecked)
	})

	return targets[0], true
}

// Statistics summarizes the registry for reporting.
func (r *ClanRegistry) Statistics() model.ClanStatistics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := model.ClanStatistics{}

	for _, clan := range r.clans {
		if clan.Type() == model.ClanTypeFaxSource && clan.HasFax() {
			stats.SourceClans++
		} else {
			stats.OtherClans++
		}
	}

	return stats
}

// Dirty reports whether the registry changed shape since the last clear.
func (r *ClanRegistry) Dirty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.dirty
}

// ClearDirty resets the dirty flag.
func (r *ClanRegistry) ClearDirty() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.dirty = false
}

func (r *ClanRegistry) markDirtyLocked() {
	r.dirty = true

	if r.onChange != nil {
		go r.onChange()
	}
}

// persist saves a clan without blocking the caller. Clans we never actually
// probed (zero LastChecked) stay out of the store.
func (r *ClanRegistry) persist(clan model.Clan) {
	if r.repo == nil || clan.LastChecked.IsZero() {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := r.repo.SaveClan(ctx, clan); err != nil {
			log.Printf("[ClanRegistry] Failed to save clan %d: %v", clan.ID, err)
		}
	}()
}

func (r *ClanRegistry) delete(clanID int64) {
	if r.repo == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := r.repo.DeleteClan(ctx, clanID); err != nil {
			log.Printf("[ClanRegistry] Failed to delete clan %d: %v", clanID, err)
		}
	}()
}
