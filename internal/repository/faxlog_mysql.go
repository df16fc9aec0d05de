package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/libraryaddict/KolFaxBot/internal/model"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLFaxLogRepository records completed faxes in MySQL, for operators who
// want the fax log in a shared database instead of the local SQLite file.
type MySQLFaxLogRepository struct {
	db *sql.DB
}

// NewMySQLFaxLogRepository connects and creates the fax log table.
func NewMySQLFaxLogRepository(dsn string) (*MySQLFaxLogRepository, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()

		return nil, fmt.Errorf("MySQL ping failed: %w", err)
	}

	query := `
		CREATE TABLE IF NOT EXISTS fax_log (
			id VARCHAR(36) PRIMARY KEY,
			player_id BIGINT NOT NULL,
			player_name VARCHAR(64) NOT NULL,
			monster_id BIGINT NOT NULL,
			monster_name VARCHAR(128) NOT NULL,
			clan_id BIGINT NOT NULL DEFAULT 0,
			clan_name VARCHAR(128) NOT NULL DEFAULT '',
			source_clan_id BIGINT NOT NULL DEFAULT 0,
			requested BIGINT NOT NULL,
			completed BIGINT NOT NULL DEFAULT 0,
			outcome TEXT NOT NULL,
			request TEXT NOT NULL,
			INDEX idx_fax_log_requested (requested)
		)`

	if _, err := db.Exec(query); err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to create fax_log table: %w", err)
	}

	log.Printf("[MySQLFaxLog] Initialized")

	return &MySQLFaxLogRepository{db: db}, nil
}

// InsertFax appends one completed attempt.
func (r *MySQLFaxLogRepository) InsertFax(ctx context.Context, entry model.FaxEntry) error {
	query := `
		INSERT INTO fax_log (id, player_id, player_name, monster_id, monster_name,
			clan_id, clan_name, source_clan_id, requested, completed, outcome, request)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query, entry.ID, entry.PlayerID, entry.PlayerName,
		entry.MonsterID, entry.MonsterName, entry.ClanID, entry.ClanName,
		entry.SourceClanID, unixOrZero(entry.Requested), unixOrZero(entry.Completed),
		entry.Outcome, entry.Request)
	if err != nil {
		return fmt.Errorf("failed to insert fax entry: %w", err)
	}

	return nil
}

// RecentFaxes returns the newest entries, newest first.
func (r *MySQLFaxLogRepository) RecentFaxes(ctx context.Context, limit int) ([]model.FaxEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
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
func (r *MySQLFaxLogRepository) Statistics(ctx context.Context) (model.FaxStatistics, error) {
	var stats model.FaxStatistics

	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fax_log`).Scan(&stats.FaxesServed)
	if err != nil {
		return stats, fmt.Errorf("failed to count faxes: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
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
func (r *MySQLFaxLogRepository) Close() error {
	return r.db.Close()
}

var _ FaxLogRepository = (*MySQLFaxLogRepository)(nil)
