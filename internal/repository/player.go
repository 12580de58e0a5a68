package repository

import (
	"context"
	"database/sql"

	"csgo-tracker/internal/domain"

	"github.com/rs/zerolog"
)

type PlayerRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewPlayerRepository(sqlDB *sql.DB, logger zerolog.Logger) *PlayerRepository {
	return &PlayerRepository{db: sqlDB, logger: logger}
}

func (r *PlayerRepository) Get(ctx context.Context, id string) (*domain.Player, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, steam_link, avatar_link, uploaded_by
		FROM csgo_players WHERE id = ?`, id)

	var p domain.Player
	if err := row.Scan(&p.ID, &p.Name, &p.SteamLink, &p.AvatarLink, &p.UploadedBy); err != nil {
		return nil, err
	}
	return &p, nil
}

// Search returns players whose name starts with the query, ordered by
// name. The two-character minimum keeps single-letter queries from
// returning the whole table.
func (r *PlayerRepository) Search(ctx context.Context, query string, limit int) ([]domain.Player, error) {
	if len(query) < 2 {
		return []domain.Player{}, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, steam_link, avatar_link, uploaded_by
		FROM csgo_players
		WHERE name LIKE ? COLLATE NOCASE
		ORDER BY name
		LIMIT ?`, query+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []domain.Player
	for rows.Next() {
		var p domain.Player
		if err := rows.Scan(&p.ID, &p.Name, &p.SteamLink, &p.AvatarLink, &p.UploadedBy); err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// Leaderboard returns the players with the most recorded matches.
func (r *PlayerRepository) Leaderboard(ctx context.Context, limit int) ([]domain.BuiltProfile, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.avatar_link, p.steam_link, COUNT(s.match_id) AS matches
		FROM csgo_players p
		JOIN csgo_stats s ON s.player_id = p.id
		GROUP BY p.id
		ORDER BY matches DESC, p.name
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []domain.BuiltProfile
	for rows.Next() {
		var bp domain.BuiltProfile
		if err := rows.Scan(&bp.ID, &bp.Name, &bp.AvatarLink, &bp.SteamLink, &bp.MatchesCount); err != nil {
			return nil, err
		}
		profiles = append(profiles, bp)
	}
	return profiles, rows.Err()
}
