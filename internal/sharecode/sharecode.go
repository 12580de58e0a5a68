// Package sharecode decodes CS:GO match sharing codes into the
// match/outcome/token triple used to request replay metadata.
package sharecode

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"
)

// Codes look like CSGO-Mn2SM-if3Mh-chO5i-JOUVm-r5tPD. The payload is a
// base-57 number over this dictionary, written least significant
// character first.
const dictionary = "ABCDEFGHJKLMNOPQRSTUVWXYZabcdefhijkmnopqrstuvwxyz23456789"

const codeLength = 25

// Decoded is the triple packed into a sharing code.
type Decoded struct {
	MatchID   uint64
	OutcomeID uint64
	Token     uint32
}

// Valid reports whether code has the CSGO-xxxxx-... shape with only
// dictionary characters. It does not prove the code refers to a real
// match.
func Valid(code string) bool {
	stripped := strip(code)
	if len(stripped) != codeLength {
		return false
	}
	for _, r := range stripped {
		if !strings.ContainsRune(dictionary, r) {
			return false
		}
	}
	return true
}

// Decode unpacks a sharing code. It returns an error for codes that
// are malformed or contain characters outside the dictionary.
func Decode(code string) (Decoded, error) {
	stripped := strip(code)
	if len(stripped) != codeLength {
		return Decoded{}, fmt.Errorf("sharecode: bad length %d", len(stripped))
	}

	num := new(big.Int)
	base := big.NewInt(int64(len(dictionary)))
	for i := len(stripped) - 1; i >= 0; i-- {
		idx := strings.IndexByte(dictionary, stripped[i])
		if idx < 0 {
			return Decoded{}, fmt.Errorf("sharecode: invalid character %q", stripped[i])
		}
		num.Mul(num, base)
		num.Add(num, big.NewInt(int64(idx)))
	}

	// 18 bytes: matchid, outcomeid (little endian uint64), token (uint16).
	raw := num.Bytes()
	if len(raw) > 18 {
		return Decoded{}, fmt.Errorf("sharecode: payload overflow (%d bytes)", len(raw))
	}
	buf := make([]byte, 18)
	copy(buf[18-len(raw):], raw)

	// The packed integer is big endian here; the fields inside are
	// little endian in the original wire order, so reverse first.
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}

	return Decoded{
		MatchID:   binary.LittleEndian.Uint64(buf[0:8]),
		OutcomeID: binary.LittleEndian.Uint64(buf[8:16]),
		Token:     uint32(binary.LittleEndian.Uint16(buf[16:18])),
	}, nil
}

func strip(code string) string {
	code = strings.TrimPrefix(code, "CSGO-")
	return strings.ReplaceAll(code, "-", "")
}
