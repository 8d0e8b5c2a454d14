package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vote-ledger/signer"
)

var adult = time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC)

func newRegistry(t *testing.T) (*JSONRegistry, string) {
	path := filepath.Join(t.TempDir(), "assets", "voters.json")
	r, err := NewJSONRegistry(Config{VotersFilePath: path, AutoSave: true}, nil)
	require.NoError(t, err)
	return r, path
}

func TestRegisterIssuesWorkingKeys(t *testing.T) {
	r, _ := newRegistry(t)

	voter, priv, err := r.Register("  Ada Lovelace ", adult)
	require.NoError(t, err)
	require.Equal(t, "Ada Lovelace", voter.Name)
	require.Equal(t, "1990-05-17", voter.DateOfBirth)
	require.False(t, voter.HasVoted)

	pub, err := signer.PublicKeyOf(priv)
	require.NoError(t, err)
	require.Equal(t, voter.PublicKey, pub)
}

func TestRegisterRules(t *testing.T) {
	r, _ := newRegistry(t)
	r.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }

	_, _, err := r.Register("Ada", adult)
	require.NoError(t, err)

	_, _, err = r.Register("ADA", adult)
	require.ErrorIs(t, err, ErrDuplicateVoter)

	_, _, err = r.Register("Ada", adult.AddDate(0, 0, 1))
	require.NoError(t, err, "same name with another birth date is a different voter")

	_, _, err = r.Register("Kid", time.Date(2006, 6, 2, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, ErrUnderage)

	_, _, err = r.Register("Just18", time.Date(2006, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	_, _, err = r.Register(" ", adult)
	require.ErrorIs(t, err, ErrInvalidVoter)
}

func TestRegistryIsCapped(t *testing.T) {
	r, err := NewJSONRegistry(Config{}, nil)
	require.NoError(t, err)

	for i := 0; i < MaxVoters; i++ {
		_, _, err := r.Register(fmt.Sprintf("voter-%d", i), adult)
		require.NoError(t, err)
	}
	_, _, err = r.Register("late", adult)
	require.ErrorIs(t, err, ErrRegistryFull)
	require.Equal(t, MaxVoters, r.Count())
}

func TestLookupAndMarkVoted(t *testing.T) {
	r, _ := newRegistry(t)
	voter, _, err := r.Register("Ada", adult)
	require.NoError(t, err)

	byID, err := r.Lookup(voter.ID)
	require.NoError(t, err)
	byKey, err := r.Lookup(voter.PublicKey)
	require.NoError(t, err)
	require.Equal(t, byID, byKey)

	_, err = r.Lookup("missing")
	require.ErrorIs(t, err, ErrVoterNotFound)

	require.NoError(t, r.MarkVoted(voter.PublicKey))
	require.NoError(t, r.MarkVoted(voter.ID))
	got, err := r.Lookup(voter.ID)
	require.NoError(t, err)
	require.True(t, got.HasVoted)

	require.ErrorIs(t, r.MarkVoted("missing"), ErrVoterNotFound)

	require.NoError(t, r.ResetVotes())
	got, err = r.Lookup(voter.ID)
	require.NoError(t, err)
	require.False(t, got.HasVoted)
}

func TestLookupAcceptsAnyKeySpelling(t *testing.T) {
	r, _ := newRegistry(t)
	voter, _, err := r.Register("Ada", adult)
	require.NoError(t, err)
	digits := strings.TrimPrefix(voter.PublicKey, "0x")

	for _, spelling := range []string{digits, strings.ToUpper(digits), "0X" + digits} {
		got, err := r.Lookup(spelling)
		require.NoError(t, err, spelling)
		require.Equal(t, voter.ID, got.ID)
	}
}

func TestLookupReturnsCopy(t *testing.T) {
	r, _ := newRegistry(t)
	voter, _, err := r.Register("Ada", adult)
	require.NoError(t, err)

	got, err := r.Lookup(voter.ID)
	require.NoError(t, err)
	got.HasVoted = true

	again, err := r.Lookup(voter.ID)
	require.NoError(t, err)
	require.False(t, again.HasVoted)
}

func TestRemove(t *testing.T) {
	r, _ := newRegistry(t)
	a, _, err := r.Register("Ada", adult)
	require.NoError(t, err)
	b, _, err := r.Register("Bob", adult)
	require.NoError(t, err)

	require.NoError(t, r.Remove(a.ID))
	require.ErrorIs(t, r.Remove(a.ID), ErrVoterNotFound)

	list := r.List()
	require.Len(t, list, 1)
	require.Equal(t, b.ID, list[0].ID)
}

func TestPersistedAcrossRestarts(t *testing.T) {
	r, path := newRegistry(t)
	voter, _, err := r.Register("Ada", adult)
	require.NoError(t, err)
	require.NoError(t, r.MarkVoted(voter.ID))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(data), "private")

	reopened, err := NewJSONRegistry(Config{VotersFilePath: path}, nil)
	require.NoError(t, err)
	got, err := reopened.Lookup(voter.PublicKey)
	require.NoError(t, err)
	require.True(t, got.HasVoted)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voters.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"voters":[{"id":"x","name":"Ada","public_key":"nope"}]}`), 0600))

	_, err := NewJSONRegistry(Config{VotersFilePath: path}, nil)
	require.ErrorIs(t, err, ErrInvalidVoter)

	require.NoError(t, os.WriteFile(path, []byte(`{`), 0600))
	_, err = NewJSONRegistry(Config{VotersFilePath: path}, nil)
	require.Error(t, err)
}
