package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCalculateHashDeterministic(t *testing.T) {
	b := NewBlock(1, []Vote{NewVote("V1", "A", "")}, "abc")
	require.Equal(t, CalculateHash(b), CalculateHash(b))
	require.Len(t, b.Hash, 64)
	require.True(t, b.HashMatches())
}

func TestCalculateHashFieldSensitivity(t *testing.T) {
	base := NewBlock(3, []Vote{NewVote("V1", "A", "")}, "prev")
	original := CalculateHash(base)

	tests := []struct {
		name   string
		mutate func(b *Block)
	}{
		{"index", func(b *Block) { b.Index++ }},
		{"timestamp", func(b *Block) { b.Timestamp++ }},
		{"previous hash", func(b *Block) { b.PreviousHash = "other" }},
		{"nonce", func(b *Block) { b.Nonce++ }},
		{"candidate", func(b *Block) { b.Payload[0].CandidateID = "B" }},
		{"voter", func(b *Block) { b.Payload[0].VoterID = "V2" }},
		{"extra vote", func(b *Block) { b.Payload = append(b.Payload, NewVote("V3", "A", "")) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := base.Clone()
			tc.mutate(c)
			require.NotEqual(t, original, CalculateHash(c))
			require.False(t, c.HashMatches())
		})
	}
}

func TestHashIgnoresNilVersusEmptyPayload(t *testing.T) {
	b := NewGenesisBlock()
	withEmpty := b.Clone()
	withEmpty.Payload = []Vote{}
	require.Equal(t, CalculateHash(b), CalculateHash(withEmpty))
}

func TestHashSurvivesIndentedJSON(t *testing.T) {
	b := NewBlock(1, []Vote{NewVote("V1", "A", "sig")}, "prev")

	data, err := json.MarshalIndent(b, "", "    ")
	require.NoError(t, err)

	var loaded Block
	require.NoError(t, json.Unmarshal(data, &loaded))
	require.Equal(t, b.Hash, loaded.Hash)
	require.True(t, loaded.HashMatches())
}

func TestGenesisBlock(t *testing.T) {
	g := NewGenesisBlock()
	require.True(t, g.IsGenesis())
	require.Empty(t, g.Payload)
	require.Equal(t, GenesisPrevHash, g.PreviousHash)
	require.Zero(t, g.Nonce)
}

func TestCloneIsDeep(t *testing.T) {
	b := NewBlock(1, []Vote{NewVote("V1", "A", "")}, "prev")
	c := b.Clone()
	c.Payload[0].CandidateID = "B"
	require.Equal(t, "A", b.Payload[0].CandidateID)
}

func TestParsePhase(t *testing.T) {
	p, err := ParsePhase("voting")
	require.NoError(t, err)
	require.Equal(t, PhaseVoting, p)

	_, err = ParsePhase("tallying")
	require.Error(t, err)
}
