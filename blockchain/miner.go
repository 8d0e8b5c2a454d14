package blockchain

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"vote-ledger/models"
)

// MaxDifficulty is the number of hex characters in a block hash.
const MaxDifficulty = 64

// checkEvery is how many nonces are tried between deadline and context checks.
const checkEvery = 1024

// Sealer fixes the final nonce and hash of a block before it is appended.
type Sealer interface {
	Seal(ctx context.Context, b *models.Block) error
}

// NewSealer returns proof-of-work sealing for difficulty > 0 and plain hashing otherwise.
// A positive budget bounds the wall-clock time spent mining one block.
func NewSealer(difficulty int, budget time.Duration) (Sealer, error) {
	switch {
	case difficulty < 0 || difficulty > MaxDifficulty:
		return nil, errors.Errorf("difficulty must be between 0 and %d, got %d", MaxDifficulty, difficulty)
	case difficulty == 0:
		return NoWork{}, nil
	default:
		return &ProofOfWork{Difficulty: difficulty, Budget: budget}, nil
	}
}

// NoWork seals by computing the hash at nonce 0.
type NoWork struct{}

func (NoWork) Seal(_ context.Context, b *models.Block) error {
	b.Nonce = 0
	b.Hash = models.CalculateHash(b)
	return nil
}

// ProofOfWork searches for a nonce whose hash starts with Difficulty '0' characters.
type ProofOfWork struct {
	Difficulty int
	Budget     time.Duration
}

func (p *ProofOfWork) Seal(ctx context.Context, b *models.Block) error {
	var deadline time.Time
	if p.Budget > 0 {
		deadline = time.Now().Add(p.Budget)
	}

	for nonce := uint64(0); ; nonce++ {
		b.Nonce = nonce
		b.Hash = models.CalculateHash(b)
		if MeetsDifficulty(b.Hash, p.Difficulty) {
			return nil
		}

		if nonce%checkEvery == checkEvery-1 {
			if err := ctx.Err(); err != nil {
				return errors.Wrapf(ErrMiningTimeout, "block %d: %v", b.Index, err)
			}
			if !deadline.IsZero() && time.Now().After(deadline) {
				return errors.Wrapf(ErrMiningTimeout, "block %d: budget of %s exhausted after %d attempts",
					b.Index, p.Budget, nonce+1)
			}
		}
	}
}

// MeetsDifficulty reports whether hash starts with difficulty '0' characters.
func MeetsDifficulty(hash string, difficulty int) bool {
	if difficulty <= 0 {
		return true
	}
	return len(hash) >= difficulty && strings.Count(hash[:difficulty], "0") == difficulty
}
