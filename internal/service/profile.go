package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"csgo-tracker/internal/cache"
	"csgo-tracker/internal/constants"
	"csgo-tracker/internal/domain"
	"csgo-tracker/internal/repository"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a requested player or match does not
// exist.
var ErrNotFound = errors.New("not found")

// MatchDetail is a match together with its full scoreboard, ordered by
// score descending.
type MatchDetail struct {
	Match      domain.Match                `json:"match"`
	Scoreboard []repository.StatWithPlayer `json:"scoreboard"`
}

// ProfileService serves the read side: profiles, match pages, search
// and the leaderboard. Profiles and match details are memoized in LFU
// caches; reads never touch the network and never write anything
// besides cache state.
type ProfileService struct {
	players *repository.PlayerRepository
	matches *repository.MatchRepository

	profiles   *cache.Cache[*domain.PlayerProfile]
	matchCache *cache.Cache[*MatchDetail]

	logger zerolog.Logger
	now    func() time.Time
}

func NewProfileService(players *repository.PlayerRepository, matches *repository.MatchRepository, logger zerolog.Logger) *ProfileService {
	return &ProfileService{
		players:    players,
		matches:    matches,
		profiles:   cache.New[*domain.PlayerProfile](constants.ProfileCacheCapacity),
		matchCache: cache.New[*MatchDetail](constants.MatchCacheCapacity),
		logger:     logger,
		now:        time.Now,
	}
}

// GetProfile returns the aggregated profile for a player, building and
// caching it on a miss.
func (s *ProfileService) GetProfile(ctx context.Context, playerID string) (*domain.PlayerProfile, error) {
	if profile, ok := s.profiles.Get(playerID); ok {
		return profile, nil
	}

	player, err := s.players.Get(ctx, playerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load player: %w", err)
	}

	history, err := s.matches.HistoryForPlayer(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load match history: %w", err)
	}
	participants, err := s.matches.Participants(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load match participants: %w", err)
	}

	profile := s.buildProfile(player, history, participants)
	s.profiles.Insert(playerID, profile)

	s.logger.Debug().Str("player", playerID).Int("matches", profile.MatchesPlayed).Msg("profile built")
	return profile, nil
}

// InvalidateFor drops the cached profiles of exactly the given
// players. Profiles of uninvolved players stay cached.
func (s *ProfileService) InvalidateFor(playerIDs []string) {
	for _, id := range playerIDs {
		s.profiles.Remove(id)
	}
}

// GetMatch returns a match with its scoreboard.
func (s *ProfileService) GetMatch(ctx context.Context, matchID int64) (*MatchDetail, error) {
	key := strconv.FormatInt(matchID, 10)
	if detail, ok := s.matchCache.Get(key); ok {
		return detail, nil
	}

	match, scoreboard, err := s.matches.GetWithStats(ctx, matchID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load match: %w", err)
	}

	detail := &MatchDetail{Match: *match, Scoreboard: scoreboard}
	s.matchCache.Insert(key, detail)
	return detail, nil
}

// PlayerMatches returns one page of a player's most recent matches.
// Pages are numbered from zero.
func (s *ProfileService) PlayerMatches(ctx context.Context, playerID string, page int) ([]domain.GameWithStats, error) {
	if page < 0 {
		page = 0
	}
	return s.matches.HistoryPageForPlayer(ctx, playerID, page, constants.MatchHistoryPageSize)
}

// Search returns players whose name starts with the query,
// case-insensitively. Queries shorter than two characters return
// nothing.
func (s *ProfileService) Search(ctx context.Context, query string) ([]domain.Player, error) {
	return s.players.Search(ctx, query, constants.SearchSuggestionLimit)
}

// Leaderboard returns the players with the most recorded matches.
func (s *ProfileService) Leaderboard(ctx context.Context) ([]domain.BuiltProfile, error) {
	return s.players.Leaderboard(ctx, constants.LeaderboardSize)
}

func (s *ProfileService) buildProfile(player *domain.Player, history []domain.GameWithStats, participants map[int64][]string) *domain.PlayerProfile {
	profile := &domain.PlayerProfile{
		ID:            player.ID,
		Name:          player.Name,
		SteamLink:     player.SteamLink,
		AvatarLink:    player.AvatarLink,
		MatchesPlayed: len(history),
		MapStats:      []domain.MapStats{},
		TenBestGames:  []domain.GameWithStats{},
		Calendar:      []domain.DayActivity{},
		SoloMatches:   []int64{},
		BuiltAt:       s.now(),
	}
	if len(history) == 0 {
		return profile
	}

	for _, g := range history {
		switch {
		case g.Match.Winner == domain.WinnerTie:
			profile.Tied++
		case g.Match.Winner == g.Stats.Side:
			profile.Won++
		default:
			profile.Lost++
		}
	}

	profile.GameAverages, profile.GameHighest = aggregateStats(history)
	profile.MapStats = mapBreakdown(history)
	profile.TenBestGames = bestTenWindow(history)
	profile.Calendar = activityCalendar(history, s.now())
	profile.SoloMatches = soloMatches(player.ID, history, participants)

	return profile
}

// statColumn extracts one numeric stat from a history row.
type statColumn struct {
	value func(domain.GameWithStats) (float64, bool)
	avg   *domain.StatSummary
	high  *domain.StatHigh
}

func aggregateStats(history []domain.GameWithStats) (domain.GameAverages, domain.GameHighs) {
	var avgs domain.GameAverages
	var highs domain.GameHighs

	always := func(f func(domain.GameWithStats) float64) func(domain.GameWithStats) (float64, bool) {
		return func(g domain.GameWithStats) (float64, bool) { return f(g), true }
	}

	columns := []statColumn{
		{always(func(g domain.GameWithStats) float64 { return float64(g.Stats.Kills) }), &avgs.Kills, &highs.Kills},
		{always(func(g domain.GameWithStats) float64 { return float64(g.Stats.Deaths) }), &avgs.Deaths, &highs.Deaths},
		{always(func(g domain.GameWithStats) float64 { return float64(g.Stats.Assists) }), &avgs.Assists, &highs.Assists},
		{always(func(g domain.GameWithStats) float64 { return float64(g.Stats.MVPs) }), &avgs.MVPs, &highs.MVPs},
		{always(func(g domain.GameWithStats) float64 { return float64(g.Stats.HSP) }), &avgs.HSP, &highs.HSP},
		{always(func(g domain.GameWithStats) float64 { return float64(g.Stats.Score) }), &avgs.Score, &highs.Score},
		{always(func(g domain.GameWithStats) float64 { return float64(g.Stats.Ping) }), &avgs.Ping, &highs.Ping},
		{always(func(g domain.GameWithStats) float64 { return float64(g.Match.Duration) }), &avgs.Duration, &highs.Duration},
		// Matches recorded before wait times were tracked carry the
		// unknown sentinel and are left out of the distribution.
		{func(g domain.GameWithStats) (float64, bool) {
			if g.Match.WaitTime == domain.WaitTimeUnknown {
				return 0, false
			}
			return float64(g.Match.WaitTime), true
		}, &avgs.WaitTime, &highs.WaitTime},
	}

	for _, col := range columns {
		var values []float64
		first := true
		for _, g := range history {
			v, ok := col.value(g)
			if !ok {
				continue
			}
			values = append(values, v)
			if first || v > col.high.Value {
				col.high.Value = v
				col.high.MatchID = g.Match.ID
				first = false
			}
		}
		*col.avg = summarize(values)
	}

	return avgs, highs
}

// summarize computes mean, population standard deviation and standard
// error over the sample.
func summarize(values []float64) domain.StatSummary {
	n := float64(len(values))
	if n == 0 {
		return domain.StatSummary{}
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / n

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	stdDev := math.Sqrt(sq / n)

	return domain.StatSummary{
		Mean:   mean,
		StdDev: stdDev,
		StdErr: stdDev / math.Sqrt(n),
	}
}

func mapBreakdown(history []domain.GameWithStats) []domain.MapStats {
	type acc struct {
		played    int
		duration  int
		waitTime  int
		waitCount int
	}
	byMap := make(map[string]*acc)
	for _, g := range history {
		a := byMap[g.Match.Map]
		if a == nil {
			a = &acc{}
			byMap[g.Match.Map] = a
		}
		a.played++
		a.duration += g.Match.Duration
		if g.Match.WaitTime != domain.WaitTimeUnknown {
			a.waitTime += g.Match.WaitTime
			a.waitCount++
		}
	}

	stats := make([]domain.MapStats, 0, len(byMap))
	for name, a := range byMap {
		m := domain.MapStats{
			Name:            name,
			TimesPlayed:     a.played,
			AverageDuration: float64(a.duration) / float64(a.played),
		}
		if a.waitCount > 0 {
			m.AverageWaitTime = float64(a.waitTime) / float64(a.waitCount)
		}
		stats = append(stats, m)
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].TimesPlayed != stats[j].TimesPlayed {
			return stats[i].TimesPlayed > stats[j].TimesPlayed
		}
		return stats[i].Name < stats[j].Name
	})
	return stats
}

// bestTenWindow finds the ten consecutive matches, in chronological
// order, with the highest combined score. Ties keep the earliest
// window. Players with fewer than ten matches get an empty slice.
func bestTenWindow(history []domain.GameWithStats) []domain.GameWithStats {
	const window = 10
	if len(history) < window {
		return []domain.GameWithStats{}
	}

	sum := 0
	for i := 0; i < window; i++ {
		sum += history[i].Stats.Score
	}
	best, bestStart := sum, 0
	for i := window; i < len(history); i++ {
		sum += history[i].Stats.Score - history[i-window].Stats.Score
		if sum > best {
			best = sum
			bestStart = i - window + 1
		}
	}

	out := make([]domain.GameWithStats, window)
	copy(out, history[bestStart:bestStart+window])
	return out
}

// activityCalendar buckets matches per local day, with one bucket for
// every day between the earliest match and now, inclusive, even when
// no match was played.
func activityCalendar(history []domain.GameWithStats, now time.Time) []domain.DayActivity {
	perDay := make(map[string]int)
	earliest := history[0].Match.Date
	for _, g := range history {
		perDay[g.Match.Date.Local().Format("2006-01-02")]++
		if g.Match.Date.Before(earliest) {
			earliest = g.Match.Date
		}
	}

	start := earliest.Local()
	start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	end := now.Local()
	end = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, end.Location())

	var calendar []domain.DayActivity
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := d.Format("2006-01-02")
		calendar = append(calendar, domain.DayActivity{Date: key, Matches: perDay[key]})
	}
	return calendar
}

// soloMatches classifies the matches where the player queued alone: no
// other participant of that match appears in any of the player's other
// matches.
func soloMatches(playerID string, history []domain.GameWithStats, participants map[int64][]string) []int64 {
	seen := make(map[string]int)
	for _, others := range participants {
		for _, id := range others {
			if id != playerID {
				seen[id]++
			}
		}
	}

	solo := []int64{}
	for _, g := range history {
		recurring := false
		for _, id := range participants[g.Match.ID] {
			if id != playerID && seen[id] > 1 {
				recurring = true
				break
			}
		}
		if !recurring {
			solo = append(solo, g.Match.ID)
		}
	}
	return solo
}
