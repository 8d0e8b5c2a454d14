package blockchain

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"vote-ledger/models"
	"vote-ledger/storage"
)

// LoadPolicy decides what Open does when the persisted chain cannot be used.
type LoadPolicy int

const (
	// LoadFallback starts a fresh genesis chain and logs the failure.
	LoadFallback LoadPolicy = iota
	// LoadFailFast returns the failure and leaves recovery to the operator.
	LoadFailFast
)

func ParseLoadPolicy(s string) (LoadPolicy, error) {
	switch s {
	case "", "fallback":
		return LoadFallback, nil
	case "fail-fast", "failfast":
		return LoadFailFast, nil
	default:
		return 0, errors.Errorf("unknown load policy %q", s)
	}
}

func (p LoadPolicy) String() string {
	if p == LoadFailFast {
		return "fail-fast"
	}
	return "fallback"
}

// Chain is the single authoritative ledger. Mutations take the write lock for the
// in-memory blocks and the store together, so readers only ever see persisted blocks.
type Chain struct {
	mu      sync.RWMutex
	blocks  []*models.Block
	pending []models.Vote
	store   storage.ChainStore
	sealer  Sealer
	log     *zap.Logger
}

type Option func(*Chain)

func WithSealer(s Sealer) Option {
	return func(c *Chain) { c.sealer = s }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Chain) { c.log = log }
}

// New returns a genesis-only chain. A nil store keeps the chain in memory only.
func New(store storage.ChainStore, opts ...Option) *Chain {
	c := &Chain{
		blocks: []*models.Block{models.NewGenesisBlock()},
		store:  store,
		sealer: NoWork{},
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open loads the chain from store. A missing chain starts fresh; an unreadable or
// invalid one is handled according to policy.
func Open(store storage.ChainStore, policy LoadPolicy, opts ...Option) (*Chain, error) {
	c := New(store, opts...)
	if store == nil {
		return c, nil
	}

	blocks, err := store.LoadChain()
	switch {
	case errors.Is(err, storage.ErrChainNotFound):
		c.log.Info("No persisted chain found, starting from genesis")
		return c.fresh()
	case err != nil:
		err = errors.Wrap(ErrPersistenceFailure, err.Error())
	default:
		err = validateBlocks(blocks)
	}

	if err != nil {
		if policy == LoadFailFast {
			return nil, errors.Wrap(err, "failed to load chain")
		}
		c.log.Warn("Discarding unusable chain, starting from genesis", zap.Error(err))
		return c.fresh()
	}

	c.blocks = blocks
	c.log.Info("Loaded chain", zap.Int("blocks", len(blocks)), zap.String("tip", blocks[len(blocks)-1].Hash))
	return c, nil
}

func (c *Chain) fresh() (*Chain, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.persistLocked(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Chain) persistLocked() error {
	if c.store == nil {
		return nil
	}
	if err := c.store.SaveChain(c.blocks); err != nil {
		return errors.Wrap(ErrPersistenceFailure, err.Error())
	}
	return nil
}

// Append seals votes into a new block on top of the current tip and persists the chain.
// An empty vote list is a no-op and returns a nil block.
func (c *Chain) Append(ctx context.Context, votes []models.Vote) (*models.Block, error) {
	return c.sealBlock(ctx, votes, false)
}

// SealPending seals the whole pending pool into one block. The sealed records leave the
// pool only once the block is persisted; on any failure they stay pending.
func (c *Chain) SealPending(ctx context.Context) (*models.Block, error) {
	return c.sealBlock(ctx, nil, true)
}

// sealBlock mines outside the write lock and commits only if the tip (and, for the
// pending pool, the sealed records) are unchanged; otherwise it starts over.
func (c *Chain) sealBlock(ctx context.Context, votes []models.Vote, fromPending bool) (*models.Block, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(ErrMiningTimeout, err.Error())
		}

		c.mu.RLock()
		tip := c.blocks[len(c.blocks)-1]
		index := uint64(len(c.blocks))
		if fromPending {
			votes = cloneVotes(c.pending)
		}
		c.mu.RUnlock()

		if len(votes) == 0 {
			return nil, nil
		}

		block := models.NewBlock(index, votes, tip.Hash)
		if err := c.sealer.Seal(ctx, block); err != nil {
			return nil, err
		}

		c.mu.Lock()
		if c.blocks[len(c.blocks)-1].Hash != tip.Hash || (fromPending && !c.pendingHasPrefix(votes)) {
			c.mu.Unlock()
			c.log.Debug("Chain moved while sealing, retrying", zap.Uint64("index", index))
			continue
		}

		c.blocks = append(c.blocks, block)
		if err := c.persistLocked(); err != nil {
			c.blocks = c.blocks[:len(c.blocks)-1]
			c.mu.Unlock()
			c.log.Error("Failed to persist sealed block, rolled back", zap.Uint64("index", index), zap.Error(err))
			return nil, err
		}
		if fromPending {
			c.pending = cloneVotes(c.pending[len(votes):])
		}
		c.mu.Unlock()

		c.log.Info("Sealed block",
			zap.Uint64("index", block.Index),
			zap.Int("votes", len(block.Payload)),
			zap.Uint64("nonce", block.Nonce),
			zap.String("hash", block.Hash))
		return block.Clone(), nil
	}
}

func (c *Chain) pendingHasPrefix(votes []models.Vote) bool {
	if len(c.pending) < len(votes) {
		return false
	}
	for i := range votes {
		if c.pending[i].ID != votes[i].ID {
			return false
		}
	}
	return true
}

// AddPending places an admitted vote in the pending pool.
func (c *Chain) AddPending(v models.Vote) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, v)
}

// RemovePending withdraws a pending vote by id and reports whether it was found.
func (c *Chain) RemovePending(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.pending {
		if c.pending[i].ID == id {
			c.pending = append(c.pending[:i:i], c.pending[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Chain) Pending() []models.Vote {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneVotes(c.pending)
}

// HasVoted reports whether voterID appears in any sealed block.
func (c *Chain) HasVoted(voterID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, block := range c.blocks {
		for _, v := range block.Payload {
			if v.VoterID == voterID {
				return true
			}
		}
	}
	return false
}

// HasPending reports whether voterID is waiting in the pending pool.
func (c *Chain) HasPending(voterID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, v := range c.pending {
		if v.VoterID == voterID {
			return true
		}
	}
	return false
}

// Validate recomputes every hash and checks index and linkage. It reports the first
// broken block and never repairs anything.
func (c *Chain) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return validateBlocks(c.blocks)
}

func (c *Chain) IsValid() bool {
	return c.Validate() == nil
}

func validateBlocks(blocks []*models.Block) error {
	if len(blocks) == 0 {
		return errors.Wrap(ErrChainCorrupt, "no genesis block")
	}

	genesis := blocks[0]
	if !genesis.IsGenesis() || len(genesis.Payload) != 0 {
		return errors.Wrap(ErrChainCorrupt, "invalid genesis block")
	}
	if !genesis.HashMatches() {
		return errors.Wrap(ErrChainCorrupt, "block 0: hash mismatch")
	}

	for i := 1; i < len(blocks); i++ {
		current, previous := blocks[i], blocks[i-1]

		if current.Index != uint64(i) {
			return errors.Wrapf(ErrChainCorrupt, "block %d: invalid index %d", i, current.Index)
		}
		if current.PreviousHash != previous.Hash {
			return errors.Wrapf(ErrChainCorrupt, "block %d: previous hash link broken", i)
		}
		if !current.HashMatches() {
			return errors.Wrapf(ErrChainCorrupt, "block %d: hash mismatch", i)
		}
	}
	return nil
}

// Reset discards every block and pending vote and persists a fresh genesis chain.
func (c *Chain) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	oldBlocks, oldPending := c.blocks, c.pending
	c.blocks = []*models.Block{models.NewGenesisBlock()}
	c.pending = nil
	if err := c.persistLocked(); err != nil {
		c.blocks, c.pending = oldBlocks, oldPending
		return err
	}

	c.log.Warn("Chain reset", zap.Int("discarded_blocks", len(oldBlocks)-1), zap.Int("discarded_pending", len(oldPending)))
	return nil
}

// Blocks returns a copy of the sealed blocks from genesis to tip.
func (c *Chain) Blocks() []*models.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()

	blocks := make([]*models.Block, len(c.blocks))
	for i, b := range c.blocks {
		blocks[i] = b.Clone()
	}
	return blocks
}

func (c *Chain) Block(index uint64) (*models.Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if index >= uint64(len(c.blocks)) {
		return nil, errors.Wrap(ErrBlockNotFound, fmt.Sprintf("index %d out of range", index))
	}
	return c.blocks[index].Clone(), nil
}

func (c *Chain) Latest() *models.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[len(c.blocks)-1].Clone()
}

func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

func cloneVotes(votes []models.Vote) []models.Vote {
	if len(votes) == 0 {
		return nil
	}
	out := make([]models.Vote, len(votes))
	copy(out, votes)
	return out
}
