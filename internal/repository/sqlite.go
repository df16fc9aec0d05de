package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/libraryaddict/KolFaxBot/internal/model"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLiteStore implements the clan, monster and fax log repositories over one
// SQLite database. Thread-safe with WAL mode for concurrent reads.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (and if needed creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Printf("[SQLiteStore] Initialized with database: %s", dbPath)

	return &SQLiteStore{db: db}, nil
}

func createTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS fax_clans (
		clan_id INTEGER PRIMARY KEY,
		clan_name TEXT NOT NULL,
		clan_title TEXT NOT NULL DEFAULT '',
		fax_monster_id INTEGER NOT NULL DEFAULT 0,
		fax_last_changed INTEGER NOT NULL DEFAULT 0,
		first_added INTEGER NOT NULL DEFAULT 0,
		last_checked INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS monsters (
		monster_id INTEGER PRIMARY KEY,
		mafia_name TEXT NOT NULL,
		manual_name TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT 'Other'
	);
	CREATE TABLE IF NOT EXISTS fax_log (
		id TEXT PRIMARY KEY,
		player_id INTEGER NOT NULL,
		player_name TEXT NOT NULL,
		monster_id INTEGER NOT NULL,
		monster_name TEXT NOT NULL,
		clan_id INTEGER NOT NULL DEFAULT 0,
		clan_name TEXT NOT NULL DEFAULT '',
		source_clan_id INTEGER NOT NULL DEFAULT 0,
		requested INTEGER NOT NULL,
		completed INTEGER NOT NULL DEFAULT 0,
		outcome TEXT NOT NULL,
		request TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_fax_log_requested ON fax_log(requested);
	`
	_, err := db.Exec(query)

	return err
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.Unix()
}

func timeFromUnix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}

	return time.Unix(sec, 0)
}

// LoadClans returns every stored clan record.
func (s *SQLiteStore) LoadClans(ctx context.Context) ([]model.Clan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT clan_id, clan_name, clan_title, fax_monster_id,
		       fax_last_changed, first_added, last_checked
		FROM fax_clans`)
	if err != nil {
		return nil, fmt.Errorf("failed to load clans: %w", err)
	}
	defer rows.Close()

	var clans []model.Clan

	for rows.Next() {
		var c model.Clan
		var changed, added, checked int64

		err := rows.Scan(&c.ID, &c.Name, &c.Title, &c.FaxMonsterID,
			&changed, &added, &checked)
		if err != nil {
			return nil, fmt.Errorf("failed to scan clan: %w", err)
		}

		c.FaxLastChanged = timeFromUnix(changed)
		c.FirstAdded = timeFromUnix(added)
		c.LastChecked = timeFromUnix(checked)

		clans = append(clans, c)
	}

	return clans, rows.Err()
}

// SaveClan inserts or updates a clan record.
func (s *SQLiteStore) SaveClan(ctx context.Context, clan model.Clan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO fax_clans (clan_id, clan_name, clan_title, fax_monster_id,
			fax_last_changed, first_added, last_checked)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(clan_id) DO UPDATE SET
			clan_name = excluded.clan_name,
			clan_title = excluded.clan_title,
			fax_monster_id = excluded.fax_monster_id,
			fax_last_changed = excluded.fax_last_changed,
			last_checked = excluded.last_checked`

	_, err := s.db.ExecContext(ctx, query, clan.ID, clan.Name, clan.Title,
		clan.FaxMonsterID, unixOrZero(clan.FaxLastChanged),
		unixOrZero(clan.FirstAdded), unixOrZero(clan.LastChecked))
	if err != nil {
		return fmt.Errorf("failed to save clan %d: %w", clan.ID, err)
	}

	return nil
}

// DeleteClan removes a clan record.
func (s *SQLiteStore) DeleteClan(ctx context.Context, clanID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM fax_clans WHERE clan_id = ?`, clanID)
	if err != nil {
		return fmt.Errorf("failed to delete clan %d: %w", clanID, err)
	}

	return nil
}

// LoadMonsters returns every stored monster.
func (s *SQLiteStore) LoadMonsters(ctx context.Context) ([]model.Monster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT monster_id, mafia_name, manual_name, category FROM monsters`)
	if err != nil {
		return nil, fmt.Errorf("failed to load monsters: %w", err)
	}
	defer rows.Close()

	var monsters []model.Monster

	for rows.Next() {
		var m model.Monster

		if err := rows.Scan(&m.ID, &m.Name, &m.ManualName, &m.Category); err != nil {
			return nil, fmt.Errorf("failed to scan monster: %w", err)
		}

		monsters = append(monsters, m)
	}

	return monsters, rows.Err()
}

// SaveMonsters replaces the stored catalog in one transaction.
func (s *SQLiteStore) SaveMonsters(ctx context.Context, monsters []model.Monster) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM monsters`); err != nil {
		return fmt.Errorf("failed to clear monsters: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO monsters (monster_id, mafia_name, manual_name, category)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, m := range monsters {
		if _, err := stmt.ExecContext(ctx, m.ID, m.Name, m.ManualName, m.Category); err != nil {
			return fmt.Errorf("failed to save monster %d: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// InsertFax appends one completed attempt.
func (s *SQLiteStore) InsertFax(ctx context.Context, entry model.FaxEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO fax_log (id, player_id, player_name, monster_id, monster_name,
			clan_id, clan_name, source_clan_id, requested, completed, outcome, request)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query, entry.ID, entry.PlayerID, entry.PlayerName,
		entry.MonsterID, entry.MonsterName, entry.ClanID, entry.ClanName,
		entry.SourceClanID, unixOrZero(entry.Requested), unixOrZero(entry.Completed),
		entry.Outcome, entry.Request)
	if err != nil {
		return fmt.Errorf("failed to insert fax entry: %w", err)
	}

	return nil
}

// RecentFaxes returns the newest entries, newest first.
func (s *SQLiteStore) RecentFaxes(ctx context.Context, limit int) ([]model.FaxEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, player_id, player_name, monster_id, monster_name,
		       clan_id, clan_name, source_clan_id, requested, completed, outcome, request
		FROM fax_log ORDER BY requested DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load fax log: %w", err)
	}
	defer rows.Close()

	return scanFaxRows(rows)
}

// Statistics summarizes the fax log.
func (s *SQLiteStore) Statistics(ctx context.Context) (model.FaxStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats model.FaxStatistics

	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fax_log`).Scan(&stats.FaxesServed)
	if err != nil {
		return stats, fmt.Errorf("failed to count faxes: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT request, COUNT(*) AS cnt FROM fax_log
		GROUP BY request ORDER BY cnt DESC LIMIT 10`)
	if err != nil {
		return stats, fmt.Errorf("failed to load top requests: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rc model.RequestCount

		if err := rows.Scan(&rc.Name, &rc.Count); err != nil {
			return stats, fmt.Errorf("failed to scan top request: %w", err)
		}

		stats.TopRequests = append(stats.TopRequests, rc)
	}

	return stats, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanFaxRows(rows *sql.Rows) ([]model.FaxEntry, error) {
	var entries []model.FaxEntry

	for rows.Next() {
		var e model.FaxEntry
		var requested, completed int64

		err := rows.Scan(&e.ID, &e.PlayerID, &e.PlayerName, &e.MonsterID,
			&e.MonsterName, &e.ClanID, &e.ClanName, &e.SourceClanID,
			&requested, &completed, &e.Outcome, &e.Request)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fax entry: %w", err)
		}

		e.Requested = timeFromUnix(requested)
		e.Completed = timeFromUnix(completed)

		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Ensure SQLiteStore implements the repository interfaces
var (
	_ ClanRepository    = (*SQLiteStore)(nil)
	_ MonsterRepository = (*SQLiteStore)(nil)
	_ FaxLogRepository  = (*SQLiteStore)(nil)
)
