package models

import "github.com/pkg/errors"

// Phase is the election phase that gates vote admission.
type Phase string

const (
	PhaseRegistration Phase = "registration"
	PhaseVoting       Phase = "voting"
	PhaseEnded        Phase = "ended"
)

func ParsePhase(s string) (Phase, error) {
	switch p := Phase(s); p {
	case PhaseRegistration, PhaseVoting, PhaseEnded:
		return p, nil
	default:
		return "", errors.Errorf("unknown election phase %q", s)
	}
}

type Candidate struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Party string `json:"party"`
}

// CandidateIDs returns the ids of the roster as a set.
func CandidateIDs(candidates []Candidate) map[string]bool {
	ids := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		ids[c.ID] = true
	}
	return ids
}
