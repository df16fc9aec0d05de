package repository

import (
	"context"

	"github.com/libraryaddict/KolFaxBot/internal/model"
)

// ClanRepository persists clan records keyed by clan id.
type ClanRepository interface {
	// LoadClans returns every stored clan record.
	LoadClans(ctx context.Context) ([]model.Clan, error)

	// SaveClan inserts or updates a clan record.
	SaveClan(ctx context.Context, clan model.Clan) error

	// DeleteClan removes a clan record.
	DeleteClan(ctx context.Context, clanID int64) error
}

// MonsterRepository persists the monster catalog keyed by monster id.
type MonsterRepository interface {
	// LoadMonsters returns every stored monster.
	LoadMonsters(ctx context.Context) ([]model.Monster, error)

	// SaveMonsters replaces the stored catalog.
	SaveMonsters(ctx context.Context, monsters []model.Monster) error
}

// FaxLogRepository records completed fax attempts for reporting.
type FaxLogRepository interface {
	// InsertFax appends one completed attempt.
	InsertFax(ctx context.Context, entry model.FaxEntry) error

	// RecentFaxes returns the newest entries, newest first.
	RecentFaxes(ctx context.Context, limit int) ([]model.FaxEntry, error)

	// Statistics summarizes the log: total served, top requests.
	Statistics(ctx context.Context) (model.FaxStatistics, error)

	// Close closes the underlying connection.
	Close() error
}
