package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"vote-ledger/blockchain"
	"vote-ledger/models"
	"vote-ledger/signer"
)

type fakeLedger struct {
	voted   map[string]bool
	pending map[string]bool
}

func (l fakeLedger) HasVoted(id string) bool   { return l.voted[id] }
func (l fakeLedger) HasPending(id string) bool { return l.pending[id] }

var roster = []models.Candidate{{ID: "A", Name: "Alice", Party: "P1"}, {ID: "B", Name: "Bob", Party: "P2"}}

func TestAdmissionCheckOrder(t *testing.T) {
	ledger := fakeLedger{voted: map[string]bool{"V1": true}, pending: map[string]bool{"V2": true}}

	tests := []struct {
		name     string
		admit    Admission
		vote     models.Vote
		phase    models.Phase
		expected error
	}{
		{"accepted", Admission{}, models.NewVote("V3", "A", ""), models.PhaseVoting, nil},
		{"registration phase", Admission{}, models.NewVote("V3", "A", ""), models.PhaseRegistration, ErrVotingNotActive},
		{"ended phase", Admission{}, models.NewVote("V3", "A", ""), models.PhaseEnded, ErrVotingNotActive},
		{"phase before candidate", Admission{}, models.NewVote("V1", "Z", ""), models.PhaseEnded, ErrVotingNotActive},
		{"unknown candidate", Admission{}, models.NewVote("V3", "Z", ""), models.PhaseVoting, ErrUnknownCandidate},
		{"candidate before double vote", Admission{}, models.NewVote("V1", "Z", ""), models.PhaseVoting, ErrUnknownCandidate},
		{"double vote", Admission{}, models.NewVote("V1", "B", ""), models.PhaseVoting, ErrDoubleVote},
		{"pending ignored", Admission{}, models.NewVote("V2", "B", ""), models.PhaseVoting, nil},
		{"pending checked", Admission{CheckPending: true}, models.NewVote("V2", "B", ""), models.PhaseVoting, ErrDoubleVote},
		{"double vote before signature", Admission{RequireSignatures: true}, models.NewVote("V1", "A", ""), models.PhaseVoting, ErrDoubleVote},
		{"signature required", Admission{RequireSignatures: true}, models.NewVote("V3", "A", ""), models.PhaseVoting, ErrBadSignature},
		{"signature without verifier", Admission{}, models.NewVote("V3", "A", "0xdead"), models.PhaseVoting, ErrBadSignature},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.admit.Check(tc.vote, tc.phase, roster, ledger)
			if tc.expected == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.expected)
			_, ok := AsRejection(err)
			require.True(t, ok)
		})
	}
}

func TestAdmissionVerifiesSignatures(t *testing.T) {
	priv, pub, err := signer.GenerateKeyPair()
	require.NoError(t, err)
	otherPriv, _, err := signer.GenerateKeyPair()
	require.NoError(t, err)

	admit := Admission{Verifier: signer.Secp256k1{}, RequireSignatures: true}
	ledger := fakeLedger{}

	sig, err := signer.Sign(priv, models.VoteMessage(pub, "A"))
	require.NoError(t, err)
	require.NoError(t, admit.Check(models.NewVote(pub, "A", sig), models.PhaseVoting, roster, ledger))

	// Signed for a different candidate.
	err = admit.Check(models.NewVote(pub, "B", sig), models.PhaseVoting, roster, ledger)
	require.ErrorIs(t, err, ErrBadSignature)

	forged, err := signer.Sign(otherPriv, models.VoteMessage(pub, "A"))
	require.NoError(t, err)
	err = admit.Check(models.NewVote(pub, "A", forged), models.PhaseVoting, roster, ledger)
	require.ErrorIs(t, err, ErrBadSignature)
}

func TestRejectionMatchesOnlyItsReason(t *testing.T) {
	err := error(reject(ReasonDoubleVote, "voter %s", "V1"))
	require.ErrorIs(t, err, ErrDoubleVote)
	require.NotErrorIs(t, err, ErrUnknownCandidate)
	require.Contains(t, err.Error(), "double_vote")

	timeout := error(reject(ReasonMiningTimeout, "slow"))
	require.ErrorIs(t, timeout, blockchain.ErrMiningTimeout)
}

func TestShortID(t *testing.T) {
	require.Equal(t, "V1", shortID("V1"))
	require.Equal(t, "0x04abcdef...123456", shortID("0x04abcdef0000000000000000123456"))
}
