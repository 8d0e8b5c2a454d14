package blockchain

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vote-ledger/models"
)

func TestProofOfWorkMeetsDifficulty(t *testing.T) {
	for _, difficulty := range []int{1, 2, 3} {
		b := models.NewBlock(1, []models.Vote{models.NewVote("V1", "A", "")}, "prev")
		pow := &ProofOfWork{Difficulty: difficulty}
		require.NoError(t, pow.Seal(context.Background(), b))

		require.True(t, strings.HasPrefix(b.Hash, strings.Repeat("0", difficulty)), "hash %s", b.Hash)
		require.True(t, b.HashMatches())
	}
}

func TestNoWorkSealsFirstAttempt(t *testing.T) {
	sealer, err := NewSealer(0, 0)
	require.NoError(t, err)
	require.IsType(t, NoWork{}, sealer)

	b := models.NewBlock(1, []models.Vote{models.NewVote("V1", "A", "")}, "prev")
	before := b.Hash
	require.NoError(t, sealer.Seal(context.Background(), b))
	require.Zero(t, b.Nonce)
	require.Equal(t, before, b.Hash)
}

func TestNewSealerRejectsBadDifficulty(t *testing.T) {
	_, err := NewSealer(-1, 0)
	require.Error(t, err)
	_, err = NewSealer(MaxDifficulty+1, 0)
	require.Error(t, err)

	sealer, err := NewSealer(2, time.Second)
	require.NoError(t, err)
	require.Equal(t, &ProofOfWork{Difficulty: 2, Budget: time.Second}, sealer)
}

func TestProofOfWorkBudget(t *testing.T) {
	b := models.NewBlock(1, []models.Vote{models.NewVote("V1", "A", "")}, "prev")
	pow := &ProofOfWork{Difficulty: MaxDifficulty, Budget: 10 * time.Millisecond}

	err := pow.Seal(context.Background(), b)
	require.ErrorIs(t, err, ErrMiningTimeout)
}

func TestProofOfWorkCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := models.NewBlock(1, nil, "prev")
	err := (&ProofOfWork{Difficulty: MaxDifficulty}).Seal(ctx, b)
	require.ErrorIs(t, err, ErrMiningTimeout)
}

func TestMeetsDifficulty(t *testing.T) {
	require.True(t, MeetsDifficulty("00ab", 2))
	require.False(t, MeetsDifficulty("0a0b", 2))
	require.True(t, MeetsDifficulty("abcd", 0))
	require.False(t, MeetsDifficulty("0", 2))
}
