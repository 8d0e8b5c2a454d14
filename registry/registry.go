package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"vote-ledger/models"
	"vote-ledger/signer"
)

const (
	MaxVoters  = 100
	MinimumAge = 18

	dobLayout = "2006-01-02"
)

var (
	ErrVoterNotFound  = errors.New("voter not found")
	ErrRegistryFull   = errors.New("voter registry is full")
	ErrDuplicateVoter = errors.New("voter with this name and date of birth already exists")
	ErrUnderage       = errors.New("voter is under the minimum age")
	ErrInvalidVoter   = errors.New("invalid voter data")
)

// VoterRegistry resolves ballot identities to registered credentials and records who
// has voted.
type VoterRegistry interface {
	Lookup(identity string) (*models.Voter, error)
	MarkVoted(identity string) error
}

type Config struct {
	VotersFilePath string `json:"voters_file_path"`
	AutoSave       bool   `json:"auto_save"`
}

// JSONRegistry keeps voters in memory and mirrors them to a JSON file. Private keys
// are handed out once at registration and never stored.
type JSONRegistry struct {
	mu     sync.RWMutex
	voters []*models.Voter
	config Config
	now    func() time.Time
	log    *zap.Logger
}

type votersFile struct {
	Voters []*models.Voter `json:"voters"`
}

func NewJSONRegistry(config Config, log *zap.Logger) (*JSONRegistry, error) {
	if log == nil {
		log = zap.NewNop()
	}
	r := &JSONRegistry{
		config: config,
		now:    time.Now,
		log:    log,
	}

	if config.VotersFilePath == "" {
		return r, nil
	}
	if err := os.MkdirAll(filepath.Dir(config.VotersFilePath), 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create directory")
	}
	if err := r.Load(); err != nil {
		return nil, err
	}
	return r, nil
}

// Load replaces the in-memory voters with the file contents. A missing file leaves
// the registry empty.
func (r *JSONRegistry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.config.VotersFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			r.voters = nil
			return nil
		}
		return errors.Wrap(err, "failed to read voters file")
	}

	var file votersFile
	if err := json.Unmarshal(data, &file); err != nil {
		return errors.Wrap(err, "failed to unmarshal voter data")
	}
	for _, v := range file.Voters {
		if err := validateVoterData(v); err != nil {
			return errors.Wrapf(err, "voter %s", v.ID)
		}
	}

	r.voters = file.Voters
	r.log.Info("Loaded voter registry", zap.Int("voters", len(r.voters)))
	return nil
}

func (r *JSONRegistry) Save() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.saveLocked()
}

func (r *JSONRegistry) saveLocked() error {
	if r.config.VotersFilePath == "" {
		return nil
	}

	data, err := json.MarshalIndent(votersFile{Voters: r.voters}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal voter data")
	}
	tmp := r.config.VotersFilePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return errors.Wrap(err, "failed to write voters file")
	}
	if err := os.Rename(tmp, r.config.VotersFilePath); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "failed to replace voters file")
	}
	return nil
}

func (r *JSONRegistry) autoSaveLocked() error {
	if !r.config.AutoSave {
		return nil
	}
	return r.saveLocked()
}

func validateVoterData(v *models.Voter) error {
	if v == nil {
		return errors.Wrap(ErrInvalidVoter, "null entry")
	}
	if v.ID == "" || strings.TrimSpace(v.Name) == "" {
		return errors.Wrap(ErrInvalidVoter, "id and name are required")
	}
	if err := signer.ValidatePublicKey(v.PublicKey); err != nil {
		return errors.Wrap(ErrInvalidVoter, err.Error())
	}
	return nil
}

// Register adds a voter who is at least MinimumAge and unique by name (case
// insensitive) and date of birth. It returns the new entry and its private key.
func (r *JSONRegistry) Register(name string, dob time.Time) (*models.Voter, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, "", errors.Wrap(ErrInvalidVoter, "name is required")
	}
	if dob.IsZero() {
		return nil, "", errors.Wrap(ErrInvalidVoter, "date of birth is required")
	}

	now := r.now()
	if age := calculateAge(dob, now); age < MinimumAge {
		return nil, "", errors.Wrapf(ErrUnderage, "must be at least %d, got %d", MinimumAge, age)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.voters) >= MaxVoters {
		return nil, "", errors.Wrapf(ErrRegistryFull, "limit is %d", MaxVoters)
	}
	dobStr := dob.Format(dobLayout)
	for _, v := range r.voters {
		if strings.EqualFold(v.Name, name) && v.DateOfBirth == dobStr {
			return nil, "", ErrDuplicateVoter
		}
	}

	priv, pub, err := signer.GenerateKeyPair()
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to generate key pair")
	}

	voter := &models.Voter{
		ID:           uuid.New().String(),
		Name:         name,
		DateOfBirth:  dobStr,
		PublicKey:    pub,
		RegisteredAt: now.Unix(),
	}
	r.voters = append(r.voters, voter)
	if err := r.autoSaveLocked(); err != nil {
		r.voters = r.voters[:len(r.voters)-1]
		return nil, "", err
	}

	r.log.Info("Registered voter", zap.String("id", voter.ID))
	copied := *voter
	return &copied, priv, nil
}

func calculateAge(birthDate, now time.Time) int {
	age := now.Year() - birthDate.Year()
	if now.Month() < birthDate.Month() ||
		(now.Month() == birthDate.Month() && now.Day() < birthDate.Day()) {
		age--
	}
	return age
}

// find matches identity against voter ids and public keys.
func (r *JSONRegistry) find(identity string) (int, bool) {
	if pub, err := signer.CanonicalPublicKey(identity); err == nil {
		identity = pub
	}
	for i, v := range r.voters {
		if v.ID == identity || v.PublicKey == identity {
			return i, true
		}
	}
	return -1, false
}

func (r *JSONRegistry) Lookup(identity string) (*models.Voter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.find(identity)
	if !ok {
		return nil, errors.Wrapf(ErrVoterNotFound, "identity %s", identity)
	}
	copied := *r.voters[i]
	return &copied, nil
}

func (r *JSONRegistry) MarkVoted(identity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.find(identity)
	if !ok {
		return errors.Wrapf(ErrVoterNotFound, "identity %s", identity)
	}
	if r.voters[i].HasVoted {
		return nil
	}
	r.voters[i].HasVoted = true
	if err := r.autoSaveLocked(); err != nil {
		r.voters[i].HasVoted = false
		return err
	}
	return nil
}

// ResetVotes clears every voted flag.
func (r *JSONRegistry) ResetVotes() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, v := range r.voters {
		v.HasVoted = false
	}
	return r.autoSaveLocked()
}

func (r *JSONRegistry) Remove(identity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.find(identity)
	if !ok {
		return errors.Wrapf(ErrVoterNotFound, "identity %s", identity)
	}
	removed := r.voters[i]
	r.voters = append(r.voters[:i:i], r.voters[i+1:]...)
	if err := r.autoSaveLocked(); err != nil {
		r.voters = append(r.voters[:i:i], append([]*models.Voter{removed}, r.voters[i:]...)...)
		return err
	}
	return nil
}

// List returns copies of all voters in registration order.
func (r *JSONRegistry) List() []models.Voter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Voter, len(r.voters))
	for i, v := range r.voters {
		out[i] = *v
	}
	return out
}

func (r *JSONRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.voters)
}
