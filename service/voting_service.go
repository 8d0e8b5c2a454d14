package service

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"vote-ledger/blockchain"
	"vote-ledger/models"
	"vote-ledger/registry"
	"vote-ledger/signer"
)

// Config holds the deployment choices of the voting service.
type Config struct {
	// BatchSize is the number of admitted votes sealed into one block. 1 seals every
	// vote synchronously inside SubmitVote.
	BatchSize int
	// RequireSignatures rejects ballots that carry neither a signature nor a key to
	// produce one.
	RequireSignatures bool
}

func DefaultConfig() Config {
	return Config{BatchSize: 1}
}

// Ballot is a vote submission before admission.
type Ballot struct {
	// Identity is a registry voter id or public key. Without a registry it is taken
	// as the public credential itself.
	Identity    string `json:"identity"`
	CandidateID string `json:"candidate_id"`
	Signature   string `json:"signature,omitempty"`
	// PrivateKey, when set and Signature is empty, is used to sign the ballot on the
	// voter's behalf. It is never stored.
	PrivateKey string `json:"private_key,omitempty"`
}

// Receipt describes an admitted vote. Block is nil while the vote is still pending.
type Receipt struct {
	Vote  models.Vote   `json:"vote"`
	Block *models.Block `json:"block,omitempty"`
}

// ChainStatus summarizes the ledger for status endpoints.
type ChainStatus struct {
	Height     int          `json:"height"`
	LatestHash string       `json:"latest_hash"`
	Pending    int          `json:"pending"`
	Valid      bool         `json:"valid"`
	Phase      models.Phase `json:"phase"`
}

// VotingService is the application context: it owns admission and sealing on top of
// one chain, an election and an optional voter registry.
type VotingService struct {
	// admitMu serializes check, add-to-pending and seal for every submission.
	admitMu   sync.Mutex
	chain     *blockchain.Chain
	election  ElectionState
	voters    registry.VoterRegistry
	admission *Admission
	cfg       Config
	metrics   *Metrics
	log       *zap.Logger
}

type Option func(*VotingService)

func WithLogger(log *zap.Logger) Option {
	return func(vs *VotingService) { vs.log = log }
}

func WithMetrics(m *Metrics) Option {
	return func(vs *VotingService) { vs.metrics = m }
}

// WithVerifier replaces the secp256k1 signature verifier.
func WithVerifier(v SignatureVerifier) Option {
	return func(vs *VotingService) { vs.admission.Verifier = v }
}

// NewVotingService wires the service. voters may be nil, in which case ballot
// identities are used as voter credentials directly.
func NewVotingService(chain *blockchain.Chain, election ElectionState, voters registry.VoterRegistry, cfg Config, opts ...Option) *VotingService {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	vs := &VotingService{
		chain:    chain,
		election: election,
		voters:   voters,
		admission: &Admission{
			Verifier:          signer.Secp256k1{},
			RequireSignatures: cfg.RequireSignatures,
			CheckPending:      cfg.BatchSize > 1,
		},
		cfg:     cfg,
		metrics: NewMetrics(nil),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(vs)
	}
	vs.metrics.setChain(chain.Len(), len(chain.Pending()))
	return vs
}

// SubmitVote admits a ballot and, in synchronous mode, seals it into its own block.
// In synchronous mode a seal failure withdraws the vote and is reported as a
// MiningTimeout or PersistenceFailure rejection.
func (vs *VotingService) SubmitVote(ctx context.Context, b Ballot) (*Receipt, error) {
	vs.admitMu.Lock()
	defer vs.admitMu.Unlock()

	voterID, err := vs.resolve(b.Identity)
	if err != nil {
		vs.metrics.submissions.WithLabelValues("unknown_voter").Inc()
		return nil, err
	}

	signature := b.Signature
	if signature == "" && b.PrivateKey != "" {
		signature, err = signer.Sign(b.PrivateKey, models.VoteMessage(voterID, b.CandidateID))
		if err != nil {
			return nil, vs.rejected(reject(ReasonBadSignature, "cannot sign ballot: %v", err), voterID)
		}
	}

	vote := models.NewVote(voterID, b.CandidateID, signature)
	if err := vs.admission.Check(vote, vs.election.Phase(), vs.election.Candidates(), vs.chain); err != nil {
		return nil, vs.rejected(err, voterID)
	}

	vs.chain.AddPending(vote)
	receipt := &Receipt{Vote: vote}

	if len(vs.chain.Pending()) < vs.cfg.BatchSize {
		vs.metrics.recordAccepted()
		vs.metrics.setChain(vs.chain.Len(), len(vs.chain.Pending()))
		vs.log.Debug("Vote admitted to pending pool", zap.String("vote_id", vote.ID))
		return receipt, nil
	}

	block, err := vs.sealLocked(ctx)
	if err != nil {
		if vs.cfg.BatchSize == 1 {
			vs.chain.RemovePending(vote.ID)
			vs.metrics.setChain(vs.chain.Len(), len(vs.chain.Pending()))
			return nil, vs.rejected(sealRejection(err), voterID)
		}
		// The batch stays pending and is retried by the next seal.
		vs.log.Warn("Failed to seal full batch", zap.Error(err))
	}

	vs.metrics.recordAccepted()
	receipt.Block = block
	return receipt, nil
}

func (vs *VotingService) resolve(identity string) (string, error) {
	if identity == "" {
		return "", errors.Wrap(registry.ErrVoterNotFound, "empty identity")
	}
	if vs.voters == nil {
		// One key must map to one voter id however its hex is spelled.
		if pub, err := signer.CanonicalPublicKey(identity); err == nil {
			return pub, nil
		}
		return identity, nil
	}
	voter, err := vs.voters.Lookup(identity)
	if err != nil {
		return "", err
	}
	return voter.PublicKey, nil
}

func (vs *VotingService) rejected(err error, voterID string) error {
	if r, ok := AsRejection(err); ok {
		vs.metrics.recordRejected(r.Reason)
		vs.log.Info("Vote rejected", zap.String("reason", r.Reason.String()), zap.String("voter", shortID(voterID)))
	}
	return err
}

func sealRejection(err error) *Rejection {
	if errors.Is(err, blockchain.ErrMiningTimeout) {
		return reject(ReasonMiningTimeout, "%v", err)
	}
	return reject(ReasonPersistenceFailure, "%v", err)
}

// SealPending seals whatever is in the pending pool. It returns a nil block when the
// pool is empty.
func (vs *VotingService) SealPending(ctx context.Context) (*models.Block, error) {
	vs.admitMu.Lock()
	defer vs.admitMu.Unlock()
	return vs.sealLocked(ctx)
}

func (vs *VotingService) sealLocked(ctx context.Context) (*models.Block, error) {
	start := time.Now()
	block, err := vs.chain.SealPending(ctx)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, nil
	}

	vs.metrics.recordSeal(time.Since(start))
	vs.metrics.setChain(vs.chain.Len(), len(vs.chain.Pending()))
	vs.markVoted(block)
	return block, nil
}

// markVoted runs only after the block is persisted. The chain stays the authority on
// who voted, so registry failures are logged and not returned.
func (vs *VotingService) markVoted(block *models.Block) {
	if vs.voters == nil {
		return
	}
	for _, v := range block.Payload {
		if err := vs.voters.MarkVoted(v.VoterID); err != nil {
			vs.log.Warn("Failed to mark voter as voted",
				zap.String("voter", shortID(v.VoterID)), zap.Uint64("block", block.Index), zap.Error(err))
		}
	}
}

// Tally counts the sealed votes against the current roster.
func (vs *VotingService) Tally() Results {
	return Tally(vs.chain.Blocks(), vs.election.Candidates())
}

func (vs *VotingService) ListBlocks() []*models.Block {
	return vs.chain.Blocks()
}

func (vs *VotingService) InspectBlock(index uint64) (*models.Block, error) {
	return vs.chain.Block(index)
}

// ValidateChain reports the first broken block, if any. Nothing is repaired.
func (vs *VotingService) ValidateChain() error {
	err := vs.chain.Validate()
	if err != nil {
		vs.log.Error("Chain validation failed", zap.Error(err))
	}
	return err
}

// ResetChain discards the ledger and returns the election to registration. Callers
// must have authenticated the operator.
func (vs *VotingService) ResetChain(ctx context.Context) error {
	vs.admitMu.Lock()
	defer vs.admitMu.Unlock()

	if err := vs.chain.Reset(ctx); err != nil {
		return errors.Wrap(err, "failed to reset chain")
	}
	if r, ok := vs.election.(interface{ Reset() }); ok {
		r.Reset()
	}
	if r, ok := vs.voters.(interface{ ResetVotes() error }); ok {
		if err := r.ResetVotes(); err != nil {
			vs.log.Warn("Failed to clear voted flags", zap.Error(err))
		}
	}
	vs.metrics.setChain(vs.chain.Len(), 0)
	return nil
}

func (vs *VotingService) Status() ChainStatus {
	latest := vs.chain.Latest()
	return ChainStatus{
		Height:     vs.chain.Len(),
		LatestHash: latest.Hash,
		Pending:    len(vs.chain.Pending()),
		Valid:      vs.chain.IsValid(),
		Phase:      vs.election.Phase(),
	}
}

func (vs *VotingService) Election() ElectionState {
	return vs.election
}

func (vs *VotingService) Voters() registry.VoterRegistry {
	return vs.voters
}
