package service

import (
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"vote-ledger/models"
)

// MaxCandidates caps the roster size.
const MaxCandidates = 10

var (
	ErrRosterFrozen      = errors.New("candidates cannot be modified while voting is active")
	ErrRosterFull        = errors.New("candidate roster is full")
	ErrCandidateNotFound = errors.New("candidate not found")
	ErrInvalidCandidate  = errors.New("candidate name and party are required")
	ErrNoCandidates      = errors.New("no candidates registered")
	ErrInvalidTransition = errors.New("invalid election phase transition")
)

// ElectionState is what vote admission needs to know about the running election.
type ElectionState interface {
	Phase() models.Phase
	Candidates() []models.Candidate
}

// VotingSession is the in-memory election: its phase and candidate roster.
type VotingSession struct {
	mu         sync.RWMutex
	phase      models.Phase
	candidates []models.Candidate
	nextID     int
	startTime  time.Time
	endTime    time.Time
}

type SessionStatus struct {
	Phase      models.Phase       `json:"phase"`
	Candidates []models.Candidate `json:"candidates"`
	StartedAt  int64              `json:"started_at,omitempty"`
	EndedAt    int64              `json:"ended_at,omitempty"`
}

func NewVotingSession(candidates ...models.Candidate) *VotingSession {
	vs := &VotingSession{
		phase:  models.PhaseRegistration,
		nextID: 1,
	}
	for _, c := range candidates {
		vs.candidates = append(vs.candidates, c)
		if n, err := strconv.Atoi(c.ID); err == nil && n >= vs.nextID {
			vs.nextID = n + 1
		}
	}
	return vs
}

func (vs *VotingSession) Phase() models.Phase {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return vs.phase
}

func (vs *VotingSession) Candidates() []models.Candidate {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	out := make([]models.Candidate, len(vs.candidates))
	copy(out, vs.candidates)
	return out
}

func (vs *VotingSession) IsActive() bool {
	return vs.Phase() == models.PhaseVoting
}

// Start opens voting. The roster must not be empty.
func (vs *VotingSession) Start() error {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if vs.phase != models.PhaseRegistration {
		return errors.Wrapf(ErrInvalidTransition, "cannot start voting from %s", vs.phase)
	}
	if len(vs.candidates) == 0 {
		return ErrNoCandidates
	}
	vs.phase = models.PhaseVoting
	vs.startTime = time.Now()
	vs.endTime = time.Time{}
	return nil
}

func (vs *VotingSession) End() error {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if vs.phase != models.PhaseVoting {
		return errors.Wrapf(ErrInvalidTransition, "cannot end voting from %s", vs.phase)
	}
	vs.phase = models.PhaseEnded
	vs.endTime = time.Now()
	return nil
}

// Reset returns the session to registration. The roster is kept.
func (vs *VotingSession) Reset() {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	vs.phase = models.PhaseRegistration
	vs.startTime = time.Time{}
	vs.endTime = time.Time{}
}

// AddCandidate appends a candidate with the next free id. Ids are never reused, so a
// removal does not change the meaning of votes already on the chain.
func (vs *VotingSession) AddCandidate(name, party string) (models.Candidate, error) {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if vs.phase == models.PhaseVoting {
		return models.Candidate{}, ErrRosterFrozen
	}
	if name == "" || party == "" {
		return models.Candidate{}, ErrInvalidCandidate
	}
	if len(vs.candidates) >= MaxCandidates {
		return models.Candidate{}, errors.Wrapf(ErrRosterFull, "limit is %d", MaxCandidates)
	}

	c := models.Candidate{ID: strconv.Itoa(vs.nextID), Name: name, Party: party}
	vs.nextID++
	vs.candidates = append(vs.candidates, c)
	return c, nil
}

func (vs *VotingSession) RemoveCandidate(id string) error {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if vs.phase == models.PhaseVoting {
		return ErrRosterFrozen
	}
	for i, c := range vs.candidates {
		if c.ID == id {
			vs.candidates = append(vs.candidates[:i:i], vs.candidates[i+1:]...)
			return nil
		}
	}
	return errors.Wrapf(ErrCandidateNotFound, "id %s", id)
}

func (vs *VotingSession) Status() SessionStatus {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	status := SessionStatus{
		Phase:      vs.phase,
		Candidates: make([]models.Candidate, len(vs.candidates)),
	}
	copy(status.Candidates, vs.candidates)
	if !vs.startTime.IsZero() {
		status.StartedAt = vs.startTime.Unix()
	}
	if !vs.endTime.IsZero() {
		status.EndedAt = vs.endTime.Unix()
	}
	return status
}
