package service

import (
	"context"
	"fmt"

	"csgo-tracker/internal/demo"
	"csgo-tracker/internal/domain"
	"csgo-tracker/internal/repository"

	"github.com/rs/zerolog"
)

const (
	uploaderName           = "csgo"
	steamProfileLinkPrefix = "https://steamcommunity.com/profiles/"
)

// IngestService turns decoded match payloads into database rows. It
// sits behind the coordinator as the sink for completed jobs.
type IngestService struct {
	matches  *repository.MatchRepository
	profiles *ProfileService
	logger   zerolog.Logger
}

func NewIngestService(matches *repository.MatchRepository, profiles *ProfileService, logger zerolog.Logger) *IngestService {
	return &IngestService{matches: matches, profiles: profiles, logger: logger}
}

// SaveMatch persists a decoded match with all its players and stat
// rows. Replaying the same match is a no-op thanks to the fingerprint
// dedup; only a genuinely new match invalidates the participants'
// cached profiles.
func (s *IngestService) SaveMatch(ctx context.Context, payload *demo.MatchPayload) error {
	match := &domain.Match{
		Map:        payload.Map,
		Date:       payload.Date,
		Duration:   payload.Duration,
		WaitTime:   domain.WaitTimeUnknown,
		CTRounds:   payload.CTRounds,
		TRounds:    payload.TRounds,
		Winner:     payload.Winner,
		UploadedBy: uploaderName,
	}

	players := make([]domain.Player, 0, len(payload.Players))
	stats := make([]domain.PlayerMatchStat, 0, len(payload.Players))
	seen := make(map[string]bool, len(payload.Players))
	for _, p := range payload.Players {
		if seen[p.SteamID3] {
			continue
		}
		seen[p.SteamID3] = true

		players = append(players, domain.Player{
			ID:         p.SteamID3,
			Name:       p.Name,
			SteamLink:  steamProfileLinkPrefix + p.SteamID64,
			UploadedBy: uploaderName,
		})
		stats = append(stats, domain.PlayerMatchStat{
			PlayerID:      p.SteamID3,
			Kills:         p.Kills,
			Deaths:        p.Deaths,
			Assists:       p.Assists,
			MVPs:          p.MVPs,
			HSP:           p.HSP,
			Score:         p.Score,
			Ping:          p.Ping,
			Side:          p.Side,
			ExtendedStats: p.ExtendedStats,
		})
	}

	stored, created, err := s.matches.Persist(ctx, match, players, stats)
	if err != nil {
		return fmt.Errorf("failed to persist match: %w", err)
	}
	if !created {
		s.logger.Info().Int64("match", stored.ID).Str("map", stored.Map).Msg("match already recorded, skipping")
		return nil
	}

	ids := make([]string, len(players))
	for i, p := range players {
		ids[i] = p.ID
	}
	s.profiles.InvalidateFor(ids)

	s.logger.Info().
		Int64("match", stored.ID).
		Str("map", stored.Map).
		Int("players", len(players)).
		Msg("match recorded")
	return nil
}
