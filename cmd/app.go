package cmd

import (
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"vote-ledger/blockchain"
	"vote-ledger/registry"
	"vote-ledger/service"
	"vote-ledger/storage"
)

// app holds everything one process needs. Nothing here is global; commands build
// their own instance from the resolved Config.
type app struct {
	cfg     *Config
	log     *zap.Logger
	chain   *blockchain.Chain
	session *service.VotingSession
	voters  *registry.JSONRegistry
	metrics *prometheus.Registry
	service *service.VotingService
}

func openChain(cfg *Config, log *zap.Logger, policy blockchain.LoadPolicy) (*blockchain.Chain, error) {
	store, err := storage.NewJSONStore(cfg.StorageDir,
		storage.WithLogger(log.Named("storage")),
		storage.WithBackups(cfg.Backups))
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize storage")
	}

	sealer, err := blockchain.NewSealer(cfg.Difficulty, cfg.MiningBudget)
	if err != nil {
		return nil, err
	}

	return blockchain.Open(store, policy,
		blockchain.WithSealer(sealer),
		blockchain.WithLogger(log.Named("chain")))
}

func newSession(cfg *Config) (*service.VotingSession, error) {
	session := service.NewVotingSession()
	for _, c := range cfg.Candidates {
		if _, err := session.AddCandidate(c.Name, c.Party); err != nil {
			return nil, errors.Wrapf(err, "candidate %s", c.Name)
		}
	}
	return session, nil
}

func newApp(cfg *Config, log *zap.Logger) (*app, error) {
	chain, err := openChain(cfg, log, cfg.LoadPolicy)
	if err != nil {
		return nil, err
	}

	session, err := newSession(cfg)
	if err != nil {
		return nil, err
	}

	voters, err := registry.NewJSONRegistry(registry.Config{
		VotersFilePath: filepath.Join(cfg.StorageDir, "voters.json"),
		AutoSave:       true,
	}, log.Named("registry"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize voter registry")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	vs := service.NewVotingService(chain, session, voters,
		service.Config{BatchSize: cfg.BatchSize, RequireSignatures: cfg.RequireSignatures},
		service.WithLogger(log.Named("service")),
		service.WithMetrics(service.NewMetrics(reg)))

	return &app{
		cfg:     cfg,
		log:     log,
		chain:   chain,
		session: session,
		voters:  voters,
		metrics: reg,
		service: vs,
	}, nil
}
