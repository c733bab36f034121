package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/MJE43/funcwar-server/internal/game"
)

// --------- Data models ---------

type Match struct {
	ID         string        `json:"id"`
	Room       string        `json:"room"`
	Mode       string        `json:"mode"`
	Reason     string        `json:"reason"`
	WinnerTeam int           `json:"winner_team"`
	StartedAt  time.Time     `json:"started_at"`
	EndedAt    time.Time     `json:"ended_at"`
	Players    []MatchPlayer `json:"players"`
}

type MatchPlayer struct {
	ClientID      string `json:"client_id"`
	Name          string `json:"name"`
	Team          int    `json:"team"`
	IsBot         bool   `json:"is_bot"`
	Won           bool   `json:"won"`
	Kills         int    `json:"kills"`
	Shots         int    `json:"shots"`
	BestMultiKill int    `json:"best_multi_kill"`
}

// LeaderboardEntry aggregates every stored match of one player name.
type LeaderboardEntry struct {
	Name          string  `json:"name"`
	Matches       int     `json:"matches"`
	Wins          int     `json:"wins"`
	Kills         int     `json:"kills"`
	Shots         int     `json:"shots"`
	BestMultiKill int     `json:"best_multi_kill"`
	WinRate       float64 `json:"win_rate"`
	Accuracy      float64 `json:"accuracy"`
}

var ErrNoResults = errors.New("store: match has no results")

// --------- Store ---------

type Store struct {
	db  *sql.DB
	log *log.Logger
}

// New opens/creates a SQLite database at dbPath and runs migrations.
func New(dbPath string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite is not concurrent for writes
	s := &Store{db: db, log: logger}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// --------- Migrations ---------

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS matches (
			id TEXT PRIMARY KEY,
			room TEXT NOT NULL,
			mode TEXT NOT NULL,
			reason TEXT NOT NULL,
			winner_team INTEGER NOT NULL,
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_matches_ended ON matches(ended_at DESC);`,

		`CREATE TABLE IF NOT EXISTS match_players (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			match_id TEXT NOT NULL,
			client_id TEXT NOT NULL,
			name TEXT NOT NULL,
			team INTEGER NOT NULL,
			is_bot INTEGER NOT NULL DEFAULT 0,
			won INTEGER NOT NULL DEFAULT 0,
			kills INTEGER NOT NULL DEFAULT 0,
			shots INTEGER NOT NULL DEFAULT 0,
			best_multi_kill INTEGER NOT NULL DEFAULT 0,
			UNIQUE(match_id, client_id),
			FOREIGN KEY(match_id) REFERENCES matches(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_match_players_name ON match_players(name);`,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// --------- Matches ---------

// SaveMatch stores one finished match from its per-participant results.
// Saving the same match twice is a no-op.
func (s *Store) SaveMatch(ctx context.Context, results []game.MatchResult) error {
	if len(results) == 0 {
		return ErrNoResults
	}
	first := results[0]
	matchID := first.MatchID
	if matchID == "" {
		matchID = uuid.NewString()
	}
	winner := 0
	for _, r := range results {
		if r.Won {
			winner = r.Team
			break
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: save match: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO matches(id, room, mode, reason, winner_team, started_at, ended_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)`,
		matchID, first.SessionID, first.Mode, first.Reason, winner,
		first.StartedAt.UTC(), first.EndedAt.UTC())
	if err != nil {
		if isConstraintErr(err) {
			return nil
		}
		return fmt.Errorf("store: save match: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO match_players(match_id, client_id, name, team, is_bot, won, kills, shots, best_multi_kill)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: save match: %w", err)
	}
	defer stmt.Close()
	for _, r := range results {
		if _, err := stmt.ExecContext(ctx, matchID, r.ClientID, r.Name, r.Team,
			r.IsBot, r.Won, r.Kills, r.Shots, r.BestMultiKill); err != nil {
			return fmt.Errorf("store: save match player %s: %w", r.ClientID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: save match: %w", err)
	}
	s.log.Printf("match saved id=%s room=%s players=%d winner=%d", matchID, first.SessionID, len(results), winner)
	return nil
}

// GetMatch returns a match with its participants.
func (s *Store) GetMatch(ctx context.Context, id string) (Match, error) {
	var m Match
	err := s.db.QueryRowContext(ctx, `
		SELECT id, room, mode, reason, winner_team, started_at, ended_at
		FROM matches WHERE id=?`, id).
		Scan(&m.ID, &m.Room, &m.Mode, &m.Reason, &m.WinnerTeam, &m.StartedAt, &m.EndedAt)
	if err != nil {
		return Match{}, err
	}
	m.Players, err = s.matchPlayers(ctx, id)
	return m, err
}

// ListMatches returns the most recently finished matches with participants.
func (s *Store) ListMatches(ctx context.Context, limit, offset int) ([]Match, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room, mode, reason, winner_team, started_at, ended_at
		FROM matches
		ORDER BY ended_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	var out []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.Room, &m.Mode, &m.Reason, &m.WinnerTeam, &m.StartedAt, &m.EndedAt); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// One connection: participants are loaded after the match cursor closes.
	for i := range out {
		if out[i].Players, err = s.matchPlayers(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) matchPlayers(ctx context.Context, matchID string) ([]MatchPlayer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT client_id, name, team, is_bot, won, kills, shots, best_multi_kill
		FROM match_players WHERE match_id=? ORDER BY id ASC`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MatchPlayer
	for rows.Next() {
		var p MatchPlayer
		if err := rows.Scan(&p.ClientID, &p.Name, &p.Team, &p.IsBot, &p.Won, &p.Kills, &p.Shots, &p.BestMultiKill); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --------- Leaderboard ---------

// Leaderboard ranks human players by wins, then kills. Bots are excluded.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, COUNT(*), SUM(won), SUM(kills), SUM(shots), MAX(best_multi_kill)
		FROM match_players
		WHERE is_bot = 0
		GROUP BY name
		ORDER BY SUM(won) DESC, SUM(kills) DESC, name ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LeaderboardEntry
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.Name, &e.Matches, &e.Wins, &e.Kills, &e.Shots, &e.BestMultiKill); err != nil {
			return nil, err
		}
		e.WinRate = ratio(e.Wins, e.Matches)
		e.Accuracy = ratio(e.Kills, e.Shots)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ratio returns n/d rounded to three decimals, or 0 when d is 0.
func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return decimal.NewFromInt(int64(n)).
		DivRound(decimal.NewFromInt(int64(d)), 3).
		InexactFloat64()
}

// --------- helpers ---------

func isConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "constraint failed") || strings.Contains(msg, "unique constraint")
}
