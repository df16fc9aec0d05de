package model

import "time"

// FaxEntry is one user-initiated fax attempt. Entries live in the
// administration ledger for a short retention window and are appended to the
// fax log when the attempt concludes.
type FaxEntry struct {
	ID           string    `json:"id"`
	PlayerID     int64     `json:"playerId"`
	PlayerName   string    `json:"playerName"`
	MonsterID    int64     `json:"monsterId"`
	MonsterName  string    `json:"monsterName"`
	ClanID       int64     `json:"clanId,omitempty"`
	ClanName     string    `json:"clanName,omitempty"`
	SourceClanID int64     `json:"sourceClanId,omitempty"`
	Requested    time.Time `json:"requested"`
	Completed    time.Time `json:"completed,omitempty"`
	Outcome      string    `json:"outcome"`
	Request      string    `json:"request"`
}

// RequestCount is one row of the top-requested report.
type RequestCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// FaxStatistics summarizes the fax log for reporting.
type FaxStatistics struct {
	FaxesServed int64          `json:"faxesServed"`
	TopRequests []RequestCount `json:"topRequests"`
}
