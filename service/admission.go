package service

import (
	"fmt"

	"github.com/pkg/errors"

	"vote-ledger/blockchain"
	"vote-ledger/models"
)

// Reason tags why a vote submission was rejected.
type Reason int

const (
	ReasonVotingNotActive Reason = iota + 1
	ReasonUnknownCandidate
	ReasonDoubleVote
	ReasonBadSignature
	ReasonMiningTimeout
	ReasonPersistenceFailure
)

var (
	ErrVotingNotActive  = errors.New("voting not active")
	ErrUnknownCandidate = errors.New("unknown candidate")
	ErrDoubleVote       = errors.New("double vote")
	ErrBadSignature     = errors.New("bad signature")

	// Sealing failures share the chain's sentinels.
	ErrMiningTimeout      = blockchain.ErrMiningTimeout
	ErrPersistenceFailure = blockchain.ErrPersistenceFailure
)

var reasonSentinels = map[Reason]error{
	ReasonVotingNotActive:    ErrVotingNotActive,
	ReasonUnknownCandidate:   ErrUnknownCandidate,
	ReasonDoubleVote:         ErrDoubleVote,
	ReasonBadSignature:       ErrBadSignature,
	ReasonMiningTimeout:      ErrMiningTimeout,
	ReasonPersistenceFailure: ErrPersistenceFailure,
}

func (r Reason) String() string {
	switch r {
	case ReasonVotingNotActive:
		return "voting_not_active"
	case ReasonUnknownCandidate:
		return "unknown_candidate"
	case ReasonDoubleVote:
		return "double_vote"
	case ReasonBadSignature:
		return "bad_signature"
	case ReasonMiningTimeout:
		return "mining_timeout"
	case ReasonPersistenceFailure:
		return "persistence_failure"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Rejection is returned for every refused submission. errors.Is matches it against
// the sentinel of its reason.
type Rejection struct {
	Reason Reason
	Detail string
}

func reject(reason Reason, format string, args ...interface{}) *Rejection {
	return &Rejection{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("vote rejected (%s): %s", r.Reason, r.Detail)
}

func (r *Rejection) Is(target error) bool {
	return target == reasonSentinels[r.Reason]
}

// AsRejection unwraps err into a Rejection if it is one.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// SignatureVerifier checks that pub signed msg.
type SignatureVerifier interface {
	Verify(pub, msg, sig string) bool
}

// Ledger answers whether a voter identity is already recorded.
type Ledger interface {
	HasVoted(voterID string) bool
	HasPending(voterID string) bool
}

// Admission is the ordered validation pipeline every vote goes through before it
// reaches the pending pool.
type Admission struct {
	// Verifier checks ballot signatures. A present signature is always verified.
	Verifier SignatureVerifier
	// RequireSignatures rejects unsigned ballots.
	RequireSignatures bool
	// CheckPending extends the double-vote scan to the pending pool. Needed whenever
	// admitted votes can sit unsealed while another submission is checked.
	CheckPending bool
}

// Check runs phase, candidate, double-vote and signature checks in that order and
// returns the first failure as a *Rejection.
func (a *Admission) Check(v models.Vote, phase models.Phase, candidates []models.Candidate, ledger Ledger) error {
	if phase != models.PhaseVoting {
		return reject(ReasonVotingNotActive, "election phase is %s", phase)
	}

	if !models.CandidateIDs(candidates)[v.CandidateID] {
		return reject(ReasonUnknownCandidate, "candidate %q does not exist", v.CandidateID)
	}

	if ledger.HasVoted(v.VoterID) {
		return reject(ReasonDoubleVote, "voter %s is already recorded on the chain", shortID(v.VoterID))
	}
	if a.CheckPending && ledger.HasPending(v.VoterID) {
		return reject(ReasonDoubleVote, "voter %s already has a vote awaiting sealing", shortID(v.VoterID))
	}

	if v.Signature == "" {
		if a.RequireSignatures {
			return reject(ReasonBadSignature, "signature required")
		}
		return nil
	}
	if a.Verifier == nil || !a.Verifier.Verify(v.VoterID, v.Message(), v.Signature) {
		return reject(ReasonBadSignature, "signature does not match voter %s", shortID(v.VoterID))
	}
	return nil
}

// shortID trims long public keys for log and error messages.
func shortID(id string) string {
	if len(id) <= 18 {
		return id
	}
	return id[:10] + "..." + id[len(id)-6:]
}
