package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vote-ledger/blockchain"
	"vote-ledger/models"
	"vote-ledger/service"
	"vote-ledger/signer"
)

// setConfig overrides viper keys for one test.
func setConfig(t *testing.T, values map[string]interface{}) {
	for key, value := range values {
		prev := viper.Get(key)
		viper.Set(key, value)
		t.Cleanup(func() { viper.Set(key, prev) })
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestParseCandidate(t *testing.T) {
	tests := []struct {
		raw      string
		expected candidateFlag
		wantErr  bool
	}{
		{"Alice:Green", candidateFlag{"Alice", "Green"}, false},
		{" Bob : Blue ", candidateFlag{"Bob", "Blue"}, false},
		{"Carol", candidateFlag{"Carol", "Independent"}, false},
		{"Dan:", candidateFlag{"Dan", "Independent"}, false},
		{":Nobody", candidateFlag{}, true},
	}
	for _, tc := range tests {
		got, err := parseCandidate(tc.raw)
		if tc.wantErr {
			require.Error(t, err, tc.raw)
			continue
		}
		require.NoError(t, err, tc.raw)
		require.Equal(t, tc.expected, got)
	}
}

func TestLoadConfig(t *testing.T) {
	setConfig(t, map[string]interface{}{
		"storage":     t.TempDir(),
		"difficulty":  3,
		"batch":       0,
		"load_policy": "fail-fast",
		"candidates":  []string{"Alice:Green", "Bob"},
	})

	cfg, err := loadConfig()
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Difficulty)
	require.Equal(t, 1, cfg.BatchSize)
	require.Equal(t, blockchain.LoadFailFast, cfg.LoadPolicy)
	require.Len(t, cfg.Candidates, 2)

	setConfig(t, map[string]interface{}{"difficulty": blockchain.MaxDifficulty + 1})
	_, err = loadConfig()
	require.Error(t, err)

	setConfig(t, map[string]interface{}{"difficulty": 1, "load_policy": "repair"})
	_, err = loadConfig()
	require.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	log, err := newLogger("debug", true)
	require.NoError(t, err)
	require.True(t, log.Core().Enabled(zap.DebugLevel))

	_, err = newLogger("loud", false)
	require.Error(t, err)
}

func seedChain(t *testing.T, dir string) {
	setConfig(t, map[string]interface{}{
		"storage":            dir,
		"difficulty":         1,
		"load_policy":        "fail-fast",
		"require_signatures": false,
		"candidates":         []string{"Alice:Green", "Bob:Blue"},
		"log_level":          "error",
	})

	cfg, err := loadConfig()
	require.NoError(t, err)
	a, err := newApp(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, a.session.Start())

	ctx := context.Background()
	dob := time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, candidate := range []string{"1", "1", "2"} {
		voter, priv, err := a.voters.Register(fmt.Sprintf("Voter %d", i), dob)
		require.NoError(t, err)
		_, err = a.service.SubmitVote(ctx, service.Ballot{
			Identity:    voter.ID,
			CandidateID: candidate,
			PrivateKey:  priv,
		})
		require.NoError(t, err)
	}
}

func TestTallyCommand(t *testing.T) {
	seedChain(t, t.TempDir())

	out, err := execute(t, "tally", "--json")
	require.NoError(t, err)
	t.Cleanup(func() { tallyJSON = false })

	var results service.Results
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Equal(t, map[string]int{"1": 2, "2": 1}, results.Counts)
	require.Equal(t, 3, results.Total)

	tallyJSON = false
	out, err = execute(t, "tally")
	require.NoError(t, err)
	require.Contains(t, out, "Alice")
	require.Contains(t, out, "TOTAL")
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	seedChain(t, dir)

	out, err := execute(t, "validate")
	require.NoError(t, err)
	require.Contains(t, out, "chain valid: 4 blocks")

	path := filepath.Join(dir, "chain.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var blocks []*models.Block
	require.NoError(t, json.Unmarshal(data, &blocks))
	blocks[2].Payload[0].CandidateID = "2"
	data, err = json.Marshal(blocks)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	_, err = execute(t, "validate")
	require.ErrorIs(t, err, blockchain.ErrChainCorrupt)
}

func TestKeygenCommand(t *testing.T) {
	out, err := execute(t, "keygen")
	require.NoError(t, err)
	require.Contains(t, out, "PRIVATE KEY:")

	priv, pub, err := signer.GenerateKeyPair()
	require.NoError(t, err)
	out, err = execute(t, "keygen", "--private-key", priv, "--candidate", "1")
	require.NoError(t, err)
	t.Cleanup(func() { keygenPrivateKey, keygenCandidate = "", "" })

	var sig string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "SIGNATURE:") {
			sig = strings.TrimSpace(strings.TrimPrefix(line, "SIGNATURE:"))
		}
	}
	require.True(t, signer.Verify(pub, models.VoteMessage(pub, "1"), sig))
}
