package domain

import (
	"encoding/json"
	"time"
)

const (
	WinnerT   = "T"
	WinnerCT  = "CT"
	WinnerTie = "TIE"
)

// WaitTimeUnknown marks matches whose pre-game wait time was never recorded.
const WaitTimeUnknown = -1

type Player struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SteamLink  string `json:"steamLink"`
	AvatarLink string `json:"avatarLink"`
	UploadedBy string `json:"uploadedBy"`
}

type Match struct {
	ID         int64     `json:"id"`
	Map        string    `json:"map"`
	Date       time.Time `json:"date"`
	Duration   int       `json:"duration"`
	WaitTime   int       `json:"waitTime"`
	CTRounds   int       `json:"ctRounds"`
	TRounds    int       `json:"tRounds"`
	Winner     string    `json:"winner"`
	UploadedBy string    `json:"uploadedBy"`
}

type PlayerMatchStat struct {
	MatchID       int64           `json:"matchId"`
	PlayerID      string          `json:"playerId"`
	Kills         int             `json:"kills"`
	Deaths        int             `json:"deaths"`
	Assists       int             `json:"assists"`
	MVPs          int             `json:"mvps"`
	HSP           int             `json:"hsp"`
	Score         int             `json:"score"`
	Ping          int             `json:"ping"`
	Side          string          `json:"side"`
	ExtendedStats json.RawMessage `json:"unnecessaryStats,omitempty"`
}

// SharingAccount is a linked steam account whose match sharing codes
// are chained by the background sweep. AuthFailed accounts are skipped
// until the user re-links their credentials.
type SharingAccount struct {
	ID           string
	SteamID64    string
	AuthCode     string
	ProfileLink  string
	AuthFailed   bool
	RegisteredAt time.Time
}

type MatchCode struct {
	PlayerID   string
	Code       string
	SavedAt    time.Time
	Downloaded bool
}
