// models_test.go

package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlayerStats(t *testing.T) {
	p := &Player{Wins: 6, Losses: 3, Draws: 1}

	assert.Equal(t, 10, p.TotalGames())
	assert.InDelta(t, 60.0, p.WinRate(), 0.001)

	fresh := &Player{}
	assert.Equal(t, 0, fresh.TotalGames())
	assert.Equal(t, 0.0, fresh.WinRate())
}

func TestGameModeValid(t *testing.T) {
	assert.True(t, ModeLocal.Valid())
	assert.True(t, ModeOnline.Valid())
	assert.True(t, ModeAI.Valid())
	assert.False(t, GameMode("ranked").Valid())
	assert.False(t, GameMode("").Valid())
}

func TestMatchPairingRoundTrip(t *testing.T) {
	pairing := &MatchPairing{
		MatchID: "match-1",
		Mode:    ModeOnline,
		Players: [2]PairedPlayer{
			{ID: 1, Username: "alice", Elo: 1200},
			{ID: 2, Username: "bob", Elo: 1250},
		},
		ServerID: "srv-1",
	}

	data, err := json.Marshal(pairing)
	require.NoError(t, err)

	var decoded MatchPairing
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, pairing.MatchID, decoded.MatchID)
	assert.Equal(t, pairing.Players, decoded.Players)
	assert.Equal(t, pairing.ServerID, decoded.ServerID)
}
