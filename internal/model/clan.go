package model

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ClanType classifies a clan by the title the bot holds in it. A clan whose
// title marks it as a fax source is expected to keep the same monster loaded.
type ClanType string

const (
	ClanTypeFaxSource ClanType = "Fax Source"
	ClanTypeRandom    ClanType = "Random Clan"
)

// Clan is a whitelisted clan and what its fax machine held the last time we
// looked. FaxMonsterID is 0 while we don't know of a loaded fax.
type Clan struct {
	ID             int64
	Name           string
	Title          string
	FaxMonsterID   int64
	FaxLastChanged time.Time
	FirstAdded     time.Time
	LastChecked    time.Time
}

// Type derives the classification from the clan title. Never stored.
func (c *Clan) Type() ClanType {
	if strings.Contains(strings.ToLower(c.Title), "source") {
		return ClanTypeFaxSource
	}

	return ClanTypeRandom
}

// HasFax reports whether we believe a fax is loaded in this clan.
func (c *Clan) HasFax() bool {
	return c.FaxMonsterID != 0
}

// Match on [MA] as 'A' used to represent an ambiguous name before ids were
// adopted in titles.
var titledMonsterPattern = regexp.MustCompile(`(?i)Source: [MA](\d+)$`)

// TitledMonsterID returns the monster id a source clan declares in its title,
// or 0 when the title doesn't declare one.
func (c *Clan) TitledMonsterID() int64 {
	match := titledMonsterPattern.FindStringSubmatch(c.Title)

	if match == nil {
		return 0
	}

	id, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return 0
	}

	return id
}

// ClanStatistics is a summary for reporting.
type ClanStatistics struct {
	SourceClans int `json:"sourceClans"`
	OtherClans  int `json:"otherClans"`
}
