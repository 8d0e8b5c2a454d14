package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"vote-ledger/models"
)

func chainOf(payloads ...[]models.Vote) []*models.Block {
	blocks := []*models.Block{models.NewGenesisBlock()}
	for i, p := range payloads {
		prev := blocks[len(blocks)-1]
		blocks = append(blocks, models.NewBlock(uint64(i+1), p, prev.Hash))
	}
	return blocks
}

func TestTallyCountsPerCandidate(t *testing.T) {
	blocks := chainOf(
		[]models.Vote{models.NewVote("V1", "A", "")},
		[]models.Vote{models.NewVote("V2", "B", ""), models.NewVote("V3", "A", "")},
		[]models.Vote{models.NewVote("V4", "A", "")},
	)

	res := Tally(blocks, roster)
	require.Equal(t, map[string]int{"A": 3, "B": 1}, res.Counts)
	require.Equal(t, 4, res.Total)
	require.Zero(t, res.Excluded)
}

func TestTallyZeroFillsAndExcludesUnknown(t *testing.T) {
	blocks := chainOf(
		[]models.Vote{models.NewVote("V1", "A", "")},
		[]models.Vote{models.NewVote("V2", "gone", "")},
	)

	res := Tally(blocks, roster)
	require.Equal(t, map[string]int{"A": 1, "B": 0}, res.Counts)
	require.Equal(t, 1, res.Total)
	require.Equal(t, 1, res.Excluded)
}

func TestTallyGenesisOnly(t *testing.T) {
	res := Tally(chainOf(), roster)
	require.Equal(t, map[string]int{"A": 0, "B": 0}, res.Counts)
	require.Zero(t, res.Total)

	res = Tally(chainOf(), nil)
	require.Empty(t, res.Counts)
}

func TestRanking(t *testing.T) {
	c := []models.Candidate{{ID: "1"}, {ID: "2"}, {ID: "3"}}
	res := Results{Counts: map[string]int{"1": 1, "2": 4, "3": 1}}

	rows := res.Ranking(c)
	require.Len(t, rows, 3)
	require.Equal(t, "2", rows[0].ID)
	require.Equal(t, 4, rows[0].Votes)
	require.Equal(t, "1", rows[1].ID)
	require.Equal(t, "3", rows[2].ID)
}
