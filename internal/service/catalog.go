package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/libraryaddict/KolFaxBot/internal/model"
	"github.com/libraryaddict/KolFaxBot/internal/repository"
)

const (
	monsterDataURL = "https://raw.githubusercontent.com/kolmafia/kolmafia/main/src/data/monsters.txt"

	// Refreshing the upstream data file is rate limited; missing monsters
	// are rare enough that anything more frequent is wasted traffic.
	refreshInterval = 12 * time.Hour
)

var (
	monsterLinePattern = regexp.MustCompile(`^([^\t]*)\t(-?\d+)\t[^\t]*\t([^\t]*)`)
	manualNamePattern  = regexp.MustCompile(`Manuel: (?:([^ "]+)|"(.*?)"(?:$| ))`)
	bracketedIDPattern = regexp.MustCompile(`^\[(\d+)\]`)
)

// MonsterFetcher retrieves the raw upstream monster data file.
type MonsterFetcher func(ctx context.Context) (string, error)

// MonsterCatalog holds every monster a fax could contain, with the name
// matching and ambiguity metadata requests are resolved against.
type MonsterCatalog struct {
	mu       sync.RWMutex
	repo     repository.MonsterRepository
	monsters []model.Monster
	byID     map[int64]int

	fetch       MonsterFetcher
	lastRefresh time.Time
	now         func() time.Time
	onChange    func()
}

// NewMonsterCatalog creates an empty catalog. fetch may be nil, in which case
// the kolmafia data file is fetched over HTTP.
func NewMonsterCatalog(repo repository.MonsterRepository, fetch MonsterFetcher) *MonsterCatalog {
	if fetch == nil {
		fetch = fetchMonsterData
	}

	return &MonsterCatalog{
		repo:  repo,
		byID:  make(map[int64]int),
		fetch: fetch,
		now:   time.Now,
	}
}

// SetOnChange registers a hook fired after every successful refresh.
func (c *MonsterCatalog) SetOnChange(fn func()) {
	c.onChange = fn
}

// Load populates the catalog from the store, falling back to a full refresh
// when the store is empty.
func (c *MonsterCatalog) Load(ctx context.Context) error {
	monsters, err := c.repo.LoadMonsters(ctx)
	if err != nil {
		return err
	}

	if len(monsters) == 0 {
		log.Printf("[MonsterCatalog] No monsters stored, fetching from kolmafia")

		return c.Refresh(ctx)
	}

	c.replace(monsters)
	log.Printf("[MonsterCatalog] Loaded %d monsters", len(monsters))

	return nil
}

// ByID returns the monster with the given id.
func (c *MonsterCatalog) ByID(id int64) (model.Monster, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	idx, ok := c.byID[id]
	if !ok {
		return model.Monster{}, false
	}

	return c.monsters[idx], true
}

// Known reports whether the catalog recognizes the monster id.
func (c *MonsterCatalog) Known(id int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.byID[id]

	return ok
}

// IsAmbiguous reports whether the monster shares its normalized name with
// another monster.
func (c *MonsterCatalog) IsAmbiguous(id int64) bool {
	monster, ok := c.ByID(id)

	return ok && monster.Ambiguous()
}

// Resolve matches free text (or an id, or the `[id]name` command form)
// against the catalog. Tiers run most-specific first and the first tier with
// any hits wins: exact id, exact manual name, exact mafia name, manual
// prefix, mafia prefix, manual substring, mafia substring. Comparison is on
// lowercased names with spaces removed.
func (c *MonsterCatalog) Resolve(identifier string) []model.Monster {
	identifier = strings.ToLower(strings.ReplaceAll(identifier, " ", ""))

	if m := bracketedIDPattern.FindStringSubmatch(identifier); m != nil {
		identifier = m[1]
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if id, err := strconv.ParseInt(identifier, 10, 64); err == nil {
		if idx, ok := c.byID[id]; ok {
			return []model.Monster{c.monsters[idx]}
		}
	}

	manualOf := func(m *model.Monster) string {
		return strings.ToLower(strings.ReplaceAll(m.ManualName, " ", ""))
	}
	nameOf := func(m *model.Monster) string {
		return strings.ToLower(strings.ReplaceAll(m.Name, " ", ""))
	}

	// An exact manual-name hit is only trusted when unique; the manual names
	// are curated but reuse the display name on collisions.
	if result := c.filter(func(m *model.Monster) bool {
		return m.ManualName != "" && manualOf(m) == identifier
	}); len(result) == 1 {
		return result
	}

	tiers := []func(m *model.Monster) bool{
		func(m *model.Monster) bool { return m.Name != "" && nameOf(m) == identifier },
		func(m *model.Monster) bool {
			return m.ManualName != "" && strings.HasPrefix(manualOf(m), identifier)
		},
		func(m *model.Monster) bool {
			return m.Name != "" && strings.HasPrefix(nameOf(m), identifier)
		},
		func(m *model.Monster) bool {
			return m.ManualName != "" && strings.Contains(manualOf(m), identifier)
		},
		func(m *model.Monster) bool {
			return m.Name != "" && strings.Contains(nameOf(m), identifier)
		},
	}

	for _, match := range tiers {
		if result := c.filter(match); len(result) > 0 {
			return result
		}
	}

	return nil
}

func (c *MonsterCatalog) filter(match func(m *model.Monster) bool) []model.Monster {
	var result []model.Monster

	for i := range c.monsters {
		if match(&c.monsters[i]) {
			result = append(result, c.monsters[i])
		}
	}

	return result
}

// TryRefresh refreshes the catalog if the rate limit allows it, reporting
// whether a refresh was attempted. Called when registry data names a monster
// id the catalog doesn't know.
func (c *MonsterCatalog) TryRefresh(ctx context.Context) (bool, error) {
	c.mu.Lock()

	if c.now().Before(c.lastRefresh.Add(refreshInterval)) {
		c.mu.Unlock()

		return false, nil
	}

	c.lastRefresh = c.now()
	c.mu.Unlock()

	log.Printf("[MonsterCatalog] Found unrecognized monster, updating monster list")

	return true, c.Refresh(ctx)
}

// Refresh fetches the upstream data file, reparses it, recomputes ambiguity
// and replaces both the store and the in-memory state.
func (c *MonsterCatalog) Refresh(ctx context.Context) error {
	log.Printf("[MonsterCatalog] Rebuilding monsters from kolmafia")

	data, err := c.fetch(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch monster data: %w", err)
	}

	monsters := ParseMonsterData(data)
	if len(monsters) == 0 {
		return fmt.Errorf("monster data parsed to an empty list")
	}

	if err := c.repo.SaveMonsters(ctx, monsters); err != nil {
		return fmt.Errorf("failed to save monsters: %w", err)
	}

	c.replace(monsters)

	if c.onChange != nil {
		c.onChange()
	}

	log.Printf("[MonsterCatalog] Rebuilt %d monsters", len(monsters))

	return nil
}

func (c *MonsterCatalog) replace(monsters []model.Monster) {
	byID := make(map[int64]int, len(monsters))

	for i := range monsters {
		byID[monsters[i].ID] = i
	}

	c.mu.Lock()
	c.monsters = monsters
	c.byID = byID
	c.mu.Unlock()
}

// ParseMonsterData parses the kolmafia monsters.txt format: tab-separated
// lines of name, id, image and attributes, comments starting with '#'. The
// attributes may carry a curated in-game name (`Manuel: ...`, quoted when it
// contains spaces) and a NOWISH marker for monsters a wish cannot summon.
// Ambiguity is recomputed from scratch over the parsed set.
func ParseMonsterData(data string) []model.Monster {
	var monsters []model.Monster

	for _, line := range strings.FieldsFunc(data, func(r rune) bool { return r == '\n' || r == '\r' }) {
		if strings.HasPrefix(line, "#") {
			continue
		}

		match := monsterLinePattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}

		id, err := strconv.ParseInt(match[2], 10, 64)
		if err != nil {
			continue
		}

		monster := model.Monster{
			ID:         id,
			Name:       match[1],
			ManualName: match[1],
			Category:   model.CategoryOther,
		}

		if manual := manualNamePattern.FindStringSubmatch(match[3]); manual != nil {
			if manual[1] != "" {
				monster.ManualName = manual[1]
			} else {
				monster.ManualName = manual[2]
			}
		}

		if strings.Contains(line, "NOWISH") {
			monster.Category = model.CategoryUnwishable
		}

		monsters = append(monsters, monster)
	}

	markAmbiguous(monsters)

	return monsters
}

// markAmbiguous flags every monster whose normalized name (or normalized
// curated name) collides with that of a different monster.
func markAmbiguous(monsters []model.Monster) {
	seen := make(map[string][]int64)

	collect := func(m *model.Monster) []string {
		var forms []string

		for _, name := range []string{m.Name, m.ManualName} {
			if normalized := model.NormalizeMonsterName(name); normalized != "" {
				forms = append(forms, normalized)
			}
		}

		return forms
	}

	for i := range monsters {
		for _, form := range collect(&monsters[i]) {
			seen[form] = append(seen[form], monsters[i].ID)
		}
	}

	for i := range monsters {
		for _, form := range collect(&monsters[i]) {
			for _, id := range seen[form] {
				if id != monsters[i].ID {
					monsters[i].Category = model.CategoryAmbiguous
				}
			}
		}
	}
}

func fetchMonsterData(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, monsterDataURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d fetching monster data", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	return string(body), nil
}
