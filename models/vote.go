package models

import (
	"time"

	"github.com/google/uuid"
)

// Vote is a single ballot as it is recorded on the chain. VoterID is the voter's public
// credential, never a personal identifier.
type Vote struct {
	ID          string `json:"id"`
	VoterID     string `json:"voter_id"`
	CandidateID string `json:"candidate_id"`
	Timestamp   int64  `json:"timestamp"`
	Signature   string `json:"signature,omitempty"`
}

func NewVote(voterID, candidateID, signature string) Vote {
	return Vote{
		ID:          uuid.New().String(),
		VoterID:     voterID,
		CandidateID: candidateID,
		Timestamp:   time.Now().Unix(),
		Signature:   signature,
	}
}

// VoteMessage is the exact message a voter signs to authorize a ballot.
func VoteMessage(voterID, candidateID string) string {
	return voterID + ":" + candidateID
}

// Message returns the signed message for v.
func (v Vote) Message() string {
	return VoteMessage(v.VoterID, v.CandidateID)
}
