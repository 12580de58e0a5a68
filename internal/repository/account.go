package repository

import (
	"context"
	"database/sql"
	"time"

	"csgo-tracker/internal/domain"

	"github.com/rs/zerolog"
)

type AccountRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewAccountRepository(sqlDB *sql.DB, logger zerolog.Logger) *AccountRepository {
	return &AccountRepository{db: sqlDB, logger: logger}
}

// Upsert saves a linked account. Re-linking resets the auth_failed
// flag so a player with fresh credentials re-enters the sweep.
func (r *AccountRepository) Upsert(ctx context.Context, acc *domain.SharingAccount) error {
	registeredAt := acc.RegisteredAt
	if registeredAt.IsZero() {
		registeredAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sharing_accounts (id, steamid64, auth_code, profile_link, auth_failed, registered_at)
		VALUES (?, ?, ?, ?, 0, ?)
		ON CONFLICT (id) DO UPDATE SET
			steamid64 = excluded.steamid64,
			auth_code = excluded.auth_code,
			profile_link = excluded.profile_link,
			auth_failed = 0`,
		acc.ID, acc.SteamID64, acc.AuthCode, acc.ProfileLink, registeredAt.UnixMilli(),
	)
	return err
}

func (r *AccountRepository) Get(ctx context.Context, id string) (*domain.SharingAccount, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, steamid64, auth_code, profile_link, auth_failed, registered_at
		FROM sharing_accounts WHERE id = ?`, id)
	return scanAccount(row)
}

// Linked returns every account the sweep should fetch codes for.
// Accounts flagged auth_failed are excluded until re-linked.
func (r *AccountRepository) Linked(ctx context.Context) ([]domain.SharingAccount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, steamid64, auth_code, profile_link, auth_failed, registered_at
		FROM sharing_accounts WHERE auth_failed = 0 ORDER BY registered_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.SharingAccount
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *acc)
	}
	return accounts, rows.Err()
}

// SetAuthFailed flags an account whose credentials were rejected
// upstream. The sweep skips it until the user re-links.
func (r *AccountRepository) SetAuthFailed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sharing_accounts SET auth_failed = 1 WHERE id = ?`, id)
	if err != nil {
		r.logger.Error().Err(err).Str("player_id", id).Msg("failed to flag account")
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.SharingAccount, error) {
	var acc domain.SharingAccount
	var registeredAt int64
	if err := row.Scan(&acc.ID, &acc.SteamID64, &acc.AuthCode, &acc.ProfileLink, &acc.AuthFailed, &registeredAt); err != nil {
		return nil, err
	}
	acc.RegisteredAt = time.UnixMilli(registeredAt)
	return &acc, nil
}
