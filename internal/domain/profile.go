package domain

import "time"

// StatSummary is the distribution of a single numeric stat over a
// player's matches. StdDev is the population standard deviation,
// StdErr is StdDev divided by the square root of the sample size.
type StatSummary struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stdDev"`
	StdErr float64 `json:"stdErr"`
}

// StatHigh is a player's all-time best value for a stat and the match
// it was set in.
type StatHigh struct {
	Value   float64 `json:"value"`
	MatchID int64   `json:"matchId"`
}

type GameAverages struct {
	Kills    StatSummary `json:"kills"`
	Deaths   StatSummary `json:"deaths"`
	Assists  StatSummary `json:"assists"`
	MVPs     StatSummary `json:"mvps"`
	HSP      StatSummary `json:"hsp"`
	Score    StatSummary `json:"score"`
	Ping     StatSummary `json:"ping"`
	Duration StatSummary `json:"matchDuration"`
	WaitTime StatSummary `json:"waitTime"`
}

type GameHighs struct {
	Kills    StatHigh `json:"kills"`
	Deaths   StatHigh `json:"deaths"`
	Assists  StatHigh `json:"assists"`
	MVPs     StatHigh `json:"mvps"`
	HSP      StatHigh `json:"hsp"`
	Score    StatHigh `json:"score"`
	Ping     StatHigh `json:"ping"`
	Duration StatHigh `json:"matchDuration"`
	WaitTime StatHigh `json:"waitTime"`
}

type MapStats struct {
	Name            string  `json:"name"`
	TimesPlayed     int     `json:"timesPlayed"`
	AverageDuration float64 `json:"averageMatchDuration"`
	AverageWaitTime float64 `json:"averageWaitTime"`
}

// DayActivity is one bucket of the activity calendar. Days without
// matches still get a bucket with Matches == 0.
type DayActivity struct {
	Date    string `json:"date"` // YYYY-MM-DD
	Matches int    `json:"matches"`
}

// GameWithStats is one row of a player's match history: the match plus
// that player's performance in it.
type GameWithStats struct {
	Match Match           `json:"match"`
	Stats PlayerMatchStat `json:"stats"`
}

// PlayerProfile is the derived, cached view over all of a player's
// matches. It is never persisted; it is rebuilt from the stat rows on
// demand.
type PlayerProfile struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	SteamLink     string          `json:"steamLink"`
	AvatarLink    string          `json:"avatarLink"`
	MatchesPlayed int             `json:"matchesPlayed"`
	Won           int             `json:"won"`
	Lost          int             `json:"lost"`
	Tied          int             `json:"tied"`
	GameAverages  GameAverages    `json:"gameAverages"`
	GameHighest   GameHighs       `json:"gameHighest"`
	MapStats      []MapStats      `json:"mapStats"`
	TenBestGames  []GameWithStats `json:"tenBestGames"`
	Calendar      []DayActivity   `json:"matchFrequency"`
	SoloMatches   []int64         `json:"soloQueueMatches"`
	BuiltAt       time.Time       `json:"builtAt"`
}

// BuiltProfile is the shortened leaderboard form of a profile.
type BuiltProfile struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	AvatarLink   string `json:"avatarLink"`
	SteamLink    string `json:"steamLink"`
	MatchesCount int    `json:"matchesCount"`
}
