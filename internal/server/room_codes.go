package server

import (
	"errors"
	"math/rand"
	"strings"
)

const roomCodeLength = 4

var (
	ErrRoomCodeLength  = errors.New("INVALID_ROOM_CODE: Room code must be exactly 4 characters")
	ErrRoomCodeCharset = errors.New("INVALID_ROOM_CODE: Room code must contain only letters A-Z")
)

// GenerateRoomCode draws uppercase codes until one is not in usedCodes.
func GenerateRoomCode(rng *rand.Rand, usedCodes map[string]bool) string {
	for {
		code := make([]byte, roomCodeLength)
		for i := range code {
			code[i] = 'A' + byte(rng.Intn(26))
		}
		roomCode := string(code)

		if !usedCodes[roomCode] {
			return roomCode
		}
	}
}

func ValidateRoomCode(code string) error {
	if len(code) != roomCodeLength {
		return ErrRoomCodeLength
	}

	code = strings.ToUpper(code)
	for _, ch := range code {
		if ch < 'A' || ch > 'Z' {
			return ErrRoomCodeCharset
		}
	}

	return nil
}

func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
