package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/libraryaddict/KolFaxBot/internal/model"
)

// fakeMonsterRepo keeps the catalog in memory for tests.
type fakeMonsterRepo struct {
	monsters []model.Monster
	saves    int
}

func (f *fakeMonsterRepo) LoadMonsters(ctx context.Context) ([]model.Monster, error) {
	return f.monsters, nil
}

func (f *fakeMonsterRepo) SaveMonsters(ctx context.Context, monsters []model.Monster) error {
	f.monsters = monsters
	f.saves++

	return nil
}

func testCatalog(monsters ...model.Monster) *MonsterCatalog {
	c := NewMonsterCatalog(&fakeMonsterRepo{}, nil)
	c.replace(monsters)

	return c
}

func TestParseMonsterData(t *testing.T) {
	data := strings.Join([]string{
		"# a comment line",
		"Goblin\t5\tgoblin.gif\tHP: 10 Def: 5",
		"Goblin King\t6\tgk.gif\tHP: 50 NOWISH",
		"mad goat\t10\tgoat.gif\tHP: 7",
		"mad goat (angry)\t11\tgoat2.gif\tHP: 9 Manuel: \"mad goat\"",
		"not a valid line",
	}, "\n")

	monsters := ParseMonsterData(data)

	if len(monsters) != 4 {
		t.Fatalf("expected 4 monsters, got %d", len(monsters))
	}

	byID := map[int64]model.Monster{}

	for _, m := range monsters {
		byID[m.ID] = m
	}

	if byID[5].Name != "Goblin" || byID[5].Category != model.CategoryOther {
		t.Fatalf("unexpected goblin: %+v", byID[5])
	}

	if byID[6].Category != model.CategoryUnwishable {
		t.Fatalf("NOWISH monster should be unwishable: %+v", byID[6])
	}

	if byID[11].ManualName != "mad goat" {
		t.Fatalf("quoted manual name not parsed: %+v", byID[11])
	}

	// 10 and 11 collide on the normalized name "madgoat".
	if byID[10].Category != model.CategoryAmbiguous || byID[11].Category != model.CategoryAmbiguous {
		t.Fatalf("expected both goats ambiguous, got %v / %v", byID[10].Category, byID[11].Category)
	}
}

func TestResolve_ExactNameShortCircuitsPrefix(t *testing.T) {
	c := testCatalog(
		model.Monster{ID: 5, Name: "Goblin", ManualName: "Goblin", Category: model.CategoryOther},
		model.Monster{ID: 6, Name: "Goblin King", ManualName: "Goblin King", Category: model.CategoryOther},
	)

	result := c.Resolve("goblin")

	if len(result) != 1 || result[0].ID != 5 {
		t.Fatalf("expected only the exact match (id 5), got %+v", result)
	}
}

func TestResolve_PrefixBeforeSubstring(t *testing.T) {
	c := testCatalog(
		model.Monster{ID: 6, Name: "Goblin King", ManualName: "Goblin King", Category: model.CategoryOther},
		model.Monster{ID: 7, Name: "King Goblin", ManualName: "King Goblin", Category: model.CategoryOther},
	)

	result := c.Resolve("goblin")

	if len(result) != 1 || result[0].ID != 6 {
		t.Fatalf("expected the prefix match (id 6), got %+v", result)
	}
}

func TestResolve_ByIDAndCommandForm(t *testing.T) {
	c := testCatalog(
		model.Monster{ID: 5, Name: "Goblin", ManualName: "Goblin", Category: model.CategoryOther},
	)

	for _, request := range []string{"5", "[5]Goblin", "[5]anything"} {
		result := c.Resolve(request)

		if len(result) != 1 || result[0].ID != 5 {
			t.Fatalf("Resolve(%q): expected id 5, got %+v", request, result)
		}
	}
}

func TestResolve_SpacesIgnored(t *testing.T) {
	c := testCatalog(
		model.Monster{ID: 6, Name: "Goblin King", ManualName: "Goblin King", Category: model.CategoryOther},
	)

	result := c.Resolve("GOBLIN king")

	if len(result) != 1 || result[0].ID != 6 {
		t.Fatalf("expected id 6, got %+v", result)
	}
}

func TestResolve_NoMatch(t *testing.T) {
	c := testCatalog(
		model.Monster{ID: 5, Name: "Goblin", ManualName: "Goblin", Category: model.CategoryOther},
	)

	if result := c.Resolve("dragon"); len(result) != 0 {
		t.Fatalf("expected no matches, got %+v", result)
	}
}

func TestTryRefresh_RateLimited(t *testing.T) {
	fetches := 0

	fetch := func(ctx context.Context) (string, error) {
		fetches++

		return "Goblin\t5\tgoblin.gif\tHP: 10", nil
	}

	c := NewMonsterCatalog(&fakeMonsterRepo{}, fetch)

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	ran, err := c.TryRefresh(context.Background())
	if err != nil || !ran {
		t.Fatalf("first refresh should run: ran=%v err=%v", ran, err)
	}

	ran, err = c.TryRefresh(context.Background())
	if err != nil || ran {
		t.Fatalf("second refresh inside the window should be skipped: ran=%v err=%v", ran, err)
	}

	now = now.Add(13 * time.Hour)

	ran, err = c.TryRefresh(context.Background())
	if err != nil || !ran {
		t.Fatalf("refresh past the window should run: ran=%v err=%v", ran, err)
	}

	if fetches != 2 {
		t.Fatalf("expected 2 fetches, got %d", fetches)
	}
}

func TestLoad_FallsBackToRefreshWhenEmpty(t *testing.T) {
	repo := &fakeMonsterRepo{}

	fetch := func(ctx context.Context) (string, error) {
		return "Goblin\t5\tgoblin.gif\tHP: 10", nil
	}

	c := NewMonsterCatalog(repo, fetch)

	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	if !c.Known(5) {
		t.Fatalf("expected monster 5 after fallback refresh")
	}

	if repo.saves != 1 {
		t.Fatalf("expected the refresh to persist once, got %d saves", repo.saves)
	}
}
