package cmd

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"vote-ledger/blockchain"
)

// Config is the resolved configuration of one invocation: flags, then environment
// (VOTELEDGER_*), then the config file, then defaults.
type Config struct {
	StorageDir        string
	Difficulty        int
	MiningBudget      time.Duration
	LoadPolicy        blockchain.LoadPolicy
	BatchSize         int
	RequireSignatures bool
	Port              int
	AdminToken        string
	QueueSize         int
	Backups           int
	Candidates        []candidateFlag
	LogLevel          string
	LogDev            bool
}

type candidateFlag struct {
	Name  string
	Party string
}

func loadConfig() (*Config, error) {
	cfg := &Config{
		StorageDir:        viper.GetString("storage"),
		Difficulty:        viper.GetInt("difficulty"),
		MiningBudget:      viper.GetDuration("mining_budget"),
		BatchSize:         viper.GetInt("batch"),
		RequireSignatures: viper.GetBool("require_signatures"),
		Port:              viper.GetInt("port"),
		AdminToken:        viper.GetString("admin_token"),
		QueueSize:         viper.GetInt("queue_size"),
		Backups:           viper.GetInt("backups"),
		LogLevel:          viper.GetString("log_level"),
		LogDev:            viper.GetBool("log_dev"),
	}

	policy, err := blockchain.ParseLoadPolicy(viper.GetString("load_policy"))
	if err != nil {
		return nil, err
	}
	cfg.LoadPolicy = policy

	if cfg.StorageDir == "" {
		return nil, errors.New("storage directory is required")
	}
	if cfg.Difficulty < 0 || cfg.Difficulty > blockchain.MaxDifficulty {
		return nil, errors.Errorf("difficulty must be between 0 and %d", blockchain.MaxDifficulty)
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}

	for _, raw := range viper.GetStringSlice("candidates") {
		c, err := parseCandidate(raw)
		if err != nil {
			return nil, err
		}
		cfg.Candidates = append(cfg.Candidates, c)
	}
	return cfg, nil
}

// parseCandidate reads "name:party". A missing party reads as "Independent".
func parseCandidate(raw string) (candidateFlag, error) {
	name, party, found := strings.Cut(raw, ":")
	name, party = strings.TrimSpace(name), strings.TrimSpace(party)
	if name == "" {
		return candidateFlag{}, errors.Errorf("invalid candidate %q", raw)
	}
	if !found || party == "" {
		party = "Independent"
	}
	return candidateFlag{Name: name, Party: party}, nil
}

func newLogger(level string, dev bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrap(err, "invalid log level")
	}

	cfg := zap.NewProductionConfig()
	if dev {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build(zap.AddCaller())
}
