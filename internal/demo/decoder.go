// Package demo decodes binary replay files into the final scoreboard
// of a match.
//
// A replay is a header followed by a stream of length-prefixed
// records. The header is the 8-byte magic "HLDEMO2\x00", a
// length-prefixed map identifier and the playback time in seconds
// (uint32). Each record starts with a one-byte type and a uint32
// payload length:
//
//	0x01 player   steamid64 (uint64), accountid (uint32), flags
//	              (uint8, bit0 = bot), name (length-prefixed)
//	0x02 round    accountid (uint32), cumulative kills/deaths/assists/
//	              mvps/score (int16 each), headshot kills this round
//	              (uint8), team (uint8: 2 = T, 3 = CT)
//	0x03 score    team (uint8), rounds won (uint16)
//	0xff end      no payload
//
// Round records are cumulative snapshots; the last one seen for a
// player is their final line, while headshot kills are summed per
// round for the headshot percentage. All integers are little endian.
package demo

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

const (
	recordPlayer = 0x01
	recordRound  = 0x02
	recordScore  = 0x03
	recordEnd    = 0xff
)

const (
	teamT  = 2
	teamCT = 3
)

var magic = []byte("HLDEMO2\x00")

// DecodeError describes why a replay could not be decoded. Decode
// failures are deterministic; retrying the same bytes is pointless.
type DecodeError struct {
	Offset int64
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("demo: decode failed at offset %d: %s", e.Offset, e.Reason)
}

type participant struct {
	steamID64 uint64
	accountID uint32
	name      string
	bot       bool

	kills, deaths, assists, mvps, score int
	team                                uint8
	rounds                              int
	headshotKills                       int
}

type decoder struct {
	r      *countingReader
	buf    [8]byte
	roster map[uint32]*participant
	order  []uint32
}

// Decode parses a complete replay. The match date is not part of the
// replay; the caller attaches it from the sharing-code metadata.
func Decode(data []byte) (*MatchPayload, error) {
	return DecodeStream(bytes.NewReader(data))
}

// DecodeStream parses a replay from r without requiring the whole file
// in memory.
func DecodeStream(r io.Reader) (*MatchPayload, error) {
	d := &decoder{
		r:      &countingReader{r: r},
		roster: make(map[uint32]*participant),
	}

	mapID, duration, err := d.header()
	if err != nil {
		return nil, err
	}

	tScore, ctScore := -1, -1
	for {
		typ, payload, err := d.record()
		if err != nil {
			return nil, err
		}

		switch typ {
		case recordPlayer:
			if err := d.player(payload); err != nil {
				return nil, err
			}
		case recordRound:
			if err := d.round(payload); err != nil {
				return nil, err
			}
		case recordScore:
			if len(payload) < 3 {
				return nil, d.fail("truncated score record")
			}
			rounds := int(binary.LittleEndian.Uint16(payload[1:3]))
			switch payload[0] {
			case teamT:
				tScore = rounds
			case teamCT:
				ctScore = rounds
			default:
				return nil, d.fail(fmt.Sprintf("score record for unknown team %d", payload[0]))
			}
		case recordEnd:
			if tScore < 0 || ctScore < 0 {
				return nil, d.fail("replay ended without a final team score")
			}
			return d.finish(mapID, duration, tScore, ctScore), nil
		default:
			return nil, d.fail(fmt.Sprintf("unknown record type 0x%02x", typ))
		}
	}
}

func (d *decoder) header() (mapID string, duration int, err error) {
	head := make([]byte, len(magic))
	if _, err := io.ReadFull(d.r, head); err != nil {
		return "", 0, d.fail("truncated header")
	}
	if !bytes.Equal(head, magic) {
		return "", 0, d.fail("bad magic")
	}

	mapID, err = d.str()
	if err != nil {
		return "", 0, err
	}
	secs, err := d.u32()
	if err != nil {
		return "", 0, err
	}
	return mapID, int(secs), nil
}

func (d *decoder) record() (byte, []byte, error) {
	if _, err := io.ReadFull(d.r, d.buf[:1]); err != nil {
		return 0, nil, d.fail("truncated record stream")
	}
	typ := d.buf[0]

	size, err := d.u32()
	if err != nil {
		return 0, nil, err
	}
	if size > 1<<20 {
		return 0, nil, d.fail(fmt.Sprintf("oversized record (%d bytes)", size))
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(d.r, payload); err != nil {
		return 0, nil, d.fail("truncated record payload")
	}
	return typ, payload, nil
}

func (d *decoder) player(payload []byte) error {
	if len(payload) < 13+2 {
		return d.fail("truncated player record")
	}
	steamID64 := binary.LittleEndian.Uint64(payload[0:8])
	accountID := binary.LittleEndian.Uint32(payload[8:12])
	flags := payload[12]
	nameLen := int(binary.LittleEndian.Uint16(payload[13:15]))
	if len(payload) < 15+nameLen {
		return d.fail("truncated player name")
	}

	if _, ok := d.roster[accountID]; ok {
		return nil // re-joined mid-match, first record wins
	}
	d.roster[accountID] = &participant{
		steamID64: steamID64,
		accountID: accountID,
		name:      string(payload[15 : 15+nameLen]),
		bot:       flags&0x01 != 0,
	}
	d.order = append(d.order, accountID)
	return nil
}

func (d *decoder) round(payload []byte) error {
	if len(payload) < 4+5*2+1+1 {
		return d.fail("truncated round record")
	}
	accountID := binary.LittleEndian.Uint32(payload[0:4])
	p, ok := d.roster[accountID]
	if !ok {
		return d.fail(fmt.Sprintf("round record for unknown account %d", accountID))
	}

	p.kills = int(int16(binary.LittleEndian.Uint16(payload[4:6])))
	p.deaths = int(int16(binary.LittleEndian.Uint16(payload[6:8])))
	p.assists = int(int16(binary.LittleEndian.Uint16(payload[8:10])))
	p.mvps = int(int16(binary.LittleEndian.Uint16(payload[10:12])))
	p.score = int(int16(binary.LittleEndian.Uint16(payload[12:14])))
	p.headshotKills += int(payload[14])
	p.team = payload[15]
	p.rounds++
	return nil
}

func (d *decoder) finish(mapID string, duration, tScore, ctScore int) *MatchPayload {
	var winner string
	switch {
	case tScore == ctScore:
		winner = "TIE"
	case tScore > ctScore:
		winner = "T"
	default:
		winner = "CT"
	}

	payload := &MatchPayload{
		Map:      DisplayMapName(mapID),
		Duration: duration,
		TRounds:  tScore,
		CTRounds: ctScore,
		Winner:   winner,
	}

	for _, id := range d.order {
		p := d.roster[id]
		if p.bot {
			continue
		}

		side := "CT"
		if p.team == teamT {
			side = "T"
		}

		hsp := 0
		if p.rounds > 0 {
			hsp = int(math.Round(float64(p.headshotKills) / float64(p.rounds) * 100))
		}

		payload.Players = append(payload.Players, PlayerResult{
			SteamID3:  fmt.Sprintf("%d", p.accountID),
			SteamID64: fmt.Sprintf("%d", p.steamID64),
			Name:      p.name,
			Kills:     p.kills,
			Deaths:    p.deaths,
			Assists:   p.assists,
			MVPs:      p.mvps,
			HSP:       hsp,
			Score:     p.score,
			Side:      side,
		})
	}
	return payload
}

func (d *decoder) str() (string, error) {
	n, err := d.u32()
	if err != nil {
		return "", err
	}
	if n > 1<<16 {
		return "", d.fail("oversized string")
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(d.r, b); err != nil {
		return "", d.fail("truncated string")
	}
	return string(b), nil
}

func (d *decoder) u32() (uint32, error) {
	if _, err := io.ReadFull(d.r, d.buf[:4]); err != nil {
		return 0, d.fail("truncated integer")
	}
	return binary.LittleEndian.Uint32(d.buf[:4]), nil
}

func (d *decoder) fail(reason string) *DecodeError {
	return &DecodeError{Offset: d.r.n, Reason: reason}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
