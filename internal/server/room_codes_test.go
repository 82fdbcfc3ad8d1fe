package server_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"okey-server/internal/server"
)

func TestGenerateRoomCodeFormat(t *testing.T) {
	assert := assert.New(t)
	rng := rand.New(rand.NewSource(1))
	usedCodes := make(map[string]bool)

	for range 100 {
		code := server.GenerateRoomCode(rng, usedCodes)

		assert.Equal(4, len(code))
		assert.NoError(server.ValidateRoomCode(code))
	}
}

func TestGenerateRoomCodeAvoidsUsedCodes(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	usedCodes := make(map[string]bool)

	for range 1000 {
		code := server.GenerateRoomCode(rng, usedCodes)
		assert.False(t, usedCodes[code], "code %s was generated twice", code)
		usedCodes[code] = true
	}
	assert.Equal(t, 1000, len(usedCodes))
}

func TestGenerateRoomCodeDeterministicForSeed(t *testing.T) {
	a := server.GenerateRoomCode(rand.New(rand.NewSource(42)), map[string]bool{})
	b := server.GenerateRoomCode(rand.New(rand.NewSource(42)), map[string]bool{})
	assert.Equal(t, a, b)
}

func TestValidateRoomCode(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{"ABCD", nil},
		{"abcd", nil},
		{"ABC", server.ErrRoomCodeLength},
		{"ABCDE", server.ErrRoomCodeLength},
		{"", server.ErrRoomCodeLength},
		{"AB1D", server.ErrRoomCodeCharset},
		{"AB D", server.ErrRoomCodeCharset},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := server.ValidateRoomCode(tt.code)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNormalizeRoomCode(t *testing.T) {
	assert.Equal(t, "ABCD", server.NormalizeRoomCode("  abcd "))
	assert.Equal(t, "WXYZ", server.NormalizeRoomCode("WxYz"))
}
