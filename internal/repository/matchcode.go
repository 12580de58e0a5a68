package repository

import (
	"context"
	"database/sql"
	"time"

	"csgo-tracker/internal/domain"

	"github.com/rs/zerolog"
)

type MatchCodeRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewMatchCodeRepository(sqlDB *sql.DB, logger zerolog.Logger) *MatchCodeRepository {
	return &MatchCodeRepository{db: sqlDB, logger: logger}
}

// Save stores a discovered sharing code. Saving a (player, code) pair
// that already exists is a no-op; the return value reports whether a
// new row was written.
func (r *MatchCodeRepository) Save(ctx context.Context, playerID, code string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sharing_codes (player_id, code, saved_at, downloaded) VALUES (?, ?, ?, 0)`,
		playerID, code, time.Now().UnixMilli(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkDownloaded flips the code's downloaded flag once a worker has
// taken responsibility for it.
func (r *MatchCodeRepository) MarkDownloaded(ctx context.Context, code string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sharing_codes SET downloaded = 1 WHERE code = ?`, code)
	if err != nil {
		r.logger.Error().Err(err).Str("code", code).Msg("failed to mark code downloaded")
	}
	return err
}

// Pending returns every code that has not been handed to a worker yet,
// oldest first. Used to prime the job queue on startup.
func (r *MatchCodeRepository) Pending(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT code FROM sharing_codes WHERE downloaded = 0 ORDER BY saved_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// Latest returns the most recently saved code for a player, the cursor
// the next chain fetch starts from. sql.ErrNoRows when the player has
// no codes.
func (r *MatchCodeRepository) Latest(ctx context.Context, playerID string) (string, error) {
	var code string
	err := r.db.QueryRowContext(ctx,
		`SELECT code FROM sharing_codes WHERE player_id = ? ORDER BY saved_at DESC, code DESC LIMIT 1`,
		playerID,
	).Scan(&code)
	return code, err
}

func (r *MatchCodeRepository) Get(ctx context.Context, playerID, code string) (*domain.MatchCode, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT player_id, code, saved_at, downloaded FROM sharing_codes WHERE player_id = ? AND code = ?`,
		playerID, code,
	)

	var mc domain.MatchCode
	var savedAt int64
	if err := row.Scan(&mc.PlayerID, &mc.Code, &savedAt, &mc.Downloaded); err != nil {
		return nil, err
	}
	mc.SavedAt = time.UnixMilli(savedAt)
	return &mc, nil
}
