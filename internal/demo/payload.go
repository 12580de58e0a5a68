package demo

import (
	"encoding/json"
	"time"
)

// PlayerResult is one participant's final scoreboard line. Ping is
// always zero for replay-decoded stats; replays do not carry it.
type PlayerResult struct {
	SteamID3      string          `json:"steamId3"`
	SteamID64     string          `json:"steamId64"`
	Name          string          `json:"name"`
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

// MatchPayload is the decoded outcome of one replay, the unit a worker
// reports back and the match store persists.
type MatchPayload struct {
	Map      string         `json:"map"`
	Date     time.Time      `json:"date"`
	Duration int            `json:"duration"`
	CTRounds int            `json:"ctRounds"`
	TRounds  int            `json:"tRounds"`
	Winner   string         `json:"winner"`
	Players  []PlayerResult `json:"players"`
}
