package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"csgo-tracker/internal/domain"

	"github.com/rs/zerolog"
)

type MatchRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewMatchRepository(sqlDB *sql.DB, logger zerolog.Logger) *MatchRepository {
	return &MatchRepository{db: sqlDB, logger: logger}
}

// StatWithPlayer is one scoreboard line of a match joined with the
// player's display data.
type StatWithPlayer struct {
	Stats  domain.PlayerMatchStat `json:"stats"`
	Player domain.Player          `json:"player"`
}

// Persist writes a match, its unknown players and its stat rows in one
// transaction. If a match with the same (map, date, duration)
// fingerprint already exists, the stored match is returned untouched
// with created == false; matches are immutable after the first
// successful decode. Two ingestions racing on the same fingerprint are
// resolved by the unique constraint: the loser re-reads and returns
// the winner's row.
func (r *MatchRepository) Persist(ctx context.Context, match *domain.Match, players []domain.Player, stats []domain.PlayerMatchStat) (*domain.Match, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := r.findByFingerprint(ctx, tx, match.Map, match.Date, match.Duration)
	if err != nil && err != sql.ErrNoRows {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO csgo_matches (map, date, duration, wait_time, ct_rounds, t_rounds, winner, uploaded_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		match.Map, match.Date.UnixMilli(), match.Duration, match.WaitTime,
		match.CTRounds, match.TRounds, match.Winner, match.UploadedBy,
	)
	if err != nil {
		// Lost a race on the fingerprint; hand back the winner.
		if existing, ferr := r.findByFingerprint(ctx, tx, match.Map, match.Date, match.Duration); ferr == nil {
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("failed to insert match: %w", err)
	}

	matchID, err := res.LastInsertId()
	if err != nil {
		return nil, false, err
	}

	for _, p := range players {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO csgo_players (id, name, steam_link, avatar_link, uploaded_by)
			VALUES (?, ?, ?, ?, ?)`,
			p.ID, p.Name, p.SteamLink, p.AvatarLink, p.UploadedBy,
		); err != nil {
			return nil, false, fmt.Errorf("failed to insert player %s: %w", p.ID, err)
		}
	}

	for _, s := range stats {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO csgo_stats
				(match_id, player_id, kills, deaths, assists, mvps, hsp, score, ping, side, extended_stats)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			matchID, s.PlayerID, s.Kills, s.Deaths, s.Assists, s.MVPs, s.HSP,
			s.Score, s.Ping, s.Side, nullableBlob(s.ExtendedStats),
		); err != nil {
			return nil, false, fmt.Errorf("failed to insert stats for %s: %w", s.PlayerID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}

	created := *match
	created.ID = matchID
	return &created, true, nil
}

func (r *MatchRepository) findByFingerprint(ctx context.Context, tx *sql.Tx, mapName string, date time.Time, duration int) (*domain.Match, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, map, date, duration, wait_time, ct_rounds, t_rounds, winner, uploaded_by
		FROM csgo_matches WHERE map = ? AND date = ? AND duration = ?`,
		mapName, date.UnixMilli(), duration)
	return scanMatch(row)
}

func (r *MatchRepository) Get(ctx context.Context, matchID int64) (*domain.Match, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, map, date, duration, wait_time, ct_rounds, t_rounds, winner, uploaded_by
		FROM csgo_matches WHERE id = ?`, matchID)
	return scanMatch(row)
}

// GetWithStats returns a match and every participant's scoreboard
// line.
func (r *MatchRepository) GetWithStats(ctx context.Context, matchID int64) (*domain.Match, []StatWithPlayer, error) {
	match, err := r.Get(ctx, matchID)
	if err != nil {
		return nil, nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT s.match_id, s.player_id, s.kills, s.deaths, s.assists, s.mvps, s.hsp,
		       s.score, s.ping, s.side, s.extended_stats,
		       p.id, p.name, p.steam_link, p.avatar_link, p.uploaded_by
		FROM csgo_stats s
		JOIN csgo_players p ON p.id = s.player_id
		WHERE s.match_id = ?
		ORDER BY s.score DESC`, matchID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var lines []StatWithPlayer
	for rows.Next() {
		var line StatWithPlayer
		var blob sql.NullString
		if err := rows.Scan(
			&line.Stats.MatchID, &line.Stats.PlayerID, &line.Stats.Kills, &line.Stats.Deaths,
			&line.Stats.Assists, &line.Stats.MVPs, &line.Stats.HSP, &line.Stats.Score,
			&line.Stats.Ping, &line.Stats.Side, &blob,
			&line.Player.ID, &line.Player.Name, &line.Player.SteamLink,
			&line.Player.AvatarLink, &line.Player.UploadedBy,
		); err != nil {
			return nil, nil, err
		}
		if blob.Valid {
			line.Stats.ExtendedStats = []byte(blob.String)
		}
		lines = append(lines, line)
	}
	return match, lines, rows.Err()
}

// HistoryForPlayer returns every match the player appears in joined
// with their own stats, ordered by play date ascending. This is the
// input of the profile build.
func (r *MatchRepository) HistoryForPlayer(ctx context.Context, playerID string) ([]domain.GameWithStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT m.id, m.map, m.date, m.duration, m.wait_time, m.ct_rounds, m.t_rounds, m.winner, m.uploaded_by,
		       s.match_id, s.player_id, s.kills, s.deaths, s.assists, s.mvps, s.hsp, s.score, s.ping, s.side
		FROM csgo_stats s
		JOIN csgo_matches m ON m.id = s.match_id
		WHERE s.player_id = ?
		ORDER BY m.date`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHistory(rows)
}

// HistoryPageForPlayer is HistoryForPlayer limited to one page.
func (r *MatchRepository) HistoryPageForPlayer(ctx context.Context, playerID string, page, pageSize int) ([]domain.GameWithStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT m.id, m.map, m.date, m.duration, m.wait_time, m.ct_rounds, m.t_rounds, m.winner, m.uploaded_by,
		       s.match_id, s.player_id, s.kills, s.deaths, s.assists, s.mvps, s.hsp, s.score, s.ping, s.side
		FROM csgo_stats s
		JOIN csgo_matches m ON m.id = s.match_id
		WHERE s.player_id = ?
		ORDER BY m.date
		LIMIT ? OFFSET ?`, playerID, pageSize, page*pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHistory(rows)
}

// Participants returns, for every match the player appears in, the ids
// of all participants of that match. Used for solo-queue
// classification.
func (r *MatchRepository) Participants(ctx context.Context, playerID string) (map[int64][]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT other.match_id, other.player_id
		FROM csgo_stats own
		JOIN csgo_stats other ON other.match_id = own.match_id
		WHERE own.player_id = ?`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := make(map[int64][]string)
	for rows.Next() {
		var matchID int64
		var id string
		if err := rows.Scan(&matchID, &id); err != nil {
			return nil, err
		}
		participants[matchID] = append(participants[matchID], id)
	}
	return participants, rows.Err()
}

func scanMatch(row *sql.Row) (*domain.Match, error) {
	var m domain.Match
	var date int64
	if err := row.Scan(&m.ID, &m.Map, &date, &m.Duration, &m.WaitTime,
		&m.CTRounds, &m.TRounds, &m.Winner, &m.UploadedBy); err != nil {
		return nil, err
	}
	m.Date = time.UnixMilli(date)
	return &m, nil
}

func scanHistory(rows *sql.Rows) ([]domain.GameWithStats, error) {
	var history []domain.GameWithStats
	for rows.Next() {
		var g domain.GameWithStats
		var date int64
		if err := rows.Scan(
			&g.Match.ID, &g.Match.Map, &date, &g.Match.Duration, &g.Match.WaitTime,
			&g.Match.CTRounds, &g.Match.TRounds, &g.Match.Winner, &g.Match.UploadedBy,
			&g.Stats.MatchID, &g.Stats.PlayerID, &g.Stats.Kills, &g.Stats.Deaths,
			&g.Stats.Assists, &g.Stats.MVPs, &g.Stats.HSP, &g.Stats.Score,
			&g.Stats.Ping, &g.Stats.Side,
		); err != nil {
			return nil, err
		}
		g.Match.Date = time.UnixMilli(date)
		history = append(history, g)
	}
	return history, rows.Err()
}

func nullableBlob(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
