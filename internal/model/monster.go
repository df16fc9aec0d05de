package model

import (
	"fmt"
	"strings"
)

// MonsterCategory tags how a monster behaves as a fax target.
type MonsterCategory string

const (
	CategoryOther      MonsterCategory = "Other"
	CategoryAmbiguous  MonsterCategory = "Ambiguous"
	CategoryUnwishable MonsterCategory = "Unwishable"
	CategoryFarming    MonsterCategory = "Farming"
)

// Monster is one requestable monster from the mafia data files.
type Monster struct {
	ID int64
	// Name as written in mafia data. Mafia decorates names when several
	// monsters collide, so ManualName is preferred for comparisons.
	Name string
	// ManualName is the name as reported in the monster manual.
	ManualName string
	Category   MonsterCategory
}

// PreferredName returns the manual name when known, the mafia name otherwise.
func (m *Monster) PreferredName() string {
	if m.ManualName != "" {
		return m.ManualName
	}

	return m.Name
}

// Command is the request string that unambiguously names this monster.
func (m *Monster) Command() string {
	return fmt.Sprintf("[%d]%s", m.ID, m.Name)
}

// Ambiguous reports whether this monster shares a normalized name with
// another monster.
func (m *Monster) Ambiguous() bool {
	return m.Category == CategoryAmbiguous
}

// NormalizeMonsterName folds a monster name for collision checks: lowercase,
// bracket and paren annotations removed, non-alphanumerics stripped. Turns
// "[32]goblin" and "goblin (blind)" into "goblin".
func NormalizeMonsterName(name string) string {
	name = strings.ToLower(name)

	for {
		start := strings.IndexAny(name, "([")
		if start < 0 {
			break
		}

		end := strings.IndexAny(name[start:], ")]")
		if end < 0 {
			break
		}

		name = name[:start] + name[start+end+1:]
	}

	var b strings.Builder

	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}

	return b.String()
}
