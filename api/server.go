package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"vote-ledger/blockchain"
	"vote-ledger/models"
	"vote-ledger/registry"
	"vote-ledger/service"
)

// AdminTokenHeader carries the operator token on admin routes.
const AdminTokenHeader = "X-Admin-Token"

type RegisterVoterRequest struct {
	Name        string `json:"name"`
	DateOfBirth string `json:"dob"`
}

type RegisterVoterResponse struct {
	VoterID    string `json:"voter_id"`
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

type CastVoteRequest struct {
	Identity    string `json:"identity"`
	CandidateID string `json:"candidate_id"`
	Signature   string `json:"signature,omitempty"`
	PrivateKey  string `json:"private_key,omitempty"`
}

type AddCandidateRequest struct {
	Name  string `json:"name"`
	Party string `json:"party"`
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

type ResultsResponse struct {
	Results service.Results           `json:"results"`
	Ranking []service.CandidateResult `json:"ranking"`
}

type BlockchainResponse struct {
	BlockCount int             `json:"block_count"`
	Blocks     []*models.Block `json:"blocks"`
	IsValid    bool            `json:"is_valid"`
	LastHash   string          `json:"last_hash"`
}

type BlockVerification struct {
	CalculatedHash string `json:"calculated_hash"`
	StoredHash     string `json:"stored_hash"`
	HashMatch      bool   `json:"hash_match"`
}

type BlockDetailsResponse struct {
	Block        *models.Block     `json:"block"`
	Verification BlockVerification `json:"verification"`
}

type ValidationResponse struct {
	IsValid bool   `json:"is_valid"`
	Error   string `json:"error,omitempty"`
}

type StatusResponse struct {
	Session service.SessionStatus `json:"session"`
	Chain   service.ChainStatus   `json:"chain"`
	Voters  int                   `json:"voters"`
}

type Config struct {
	// AdminToken gates operator routes. Empty disables them.
	AdminToken string
	// Gatherer backs /metrics. Nil serves the default registry.
	Gatherer prometheus.Gatherer
}

type Server struct {
	votingService *service.VotingService
	session       *service.VotingSession
	voters        *registry.JSONRegistry
	queue         *service.QueueProcessor
	config        Config
	log           *zap.Logger
}

// NewServer builds the HTTP front end. voters may be nil when the registry is not
// used; queue may be nil to submit ballots directly.
func NewServer(vs *service.VotingService, session *service.VotingSession, voters *registry.JSONRegistry,
	queue *service.QueueProcessor, config Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		votingService: vs,
		session:       session,
		voters:        voters,
		queue:         queue,
		config:        config,
		log:           log,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/register", s.handleRegisterVoter)
	mux.HandleFunc("/api/vote", s.handleCastVote)
	mux.HandleFunc("/api/results", s.handleGetResults)
	mux.HandleFunc("/api/status", s.handleGetStatus)
	mux.HandleFunc("/api/candidates", s.handleCandidates)

	// Chain
	mux.HandleFunc("/api/blockchain", s.handleGetBlockchain)
	mux.HandleFunc("/api/blockchain/block", s.handleGetBlock)
	mux.HandleFunc("/api/blockchain/validate", s.handleValidateChain)
	mux.HandleFunc("/api/blockchain/status", s.handleGetBlockchainStatus)

	// Admin
	mux.HandleFunc("/api/election/start", s.admin(s.handleStartElection))
	mux.HandleFunc("/api/election/end", s.admin(s.handleEndElection))
	mux.HandleFunc("/api/seal", s.admin(s.handleSeal))
	mux.HandleFunc("/api/voters", s.admin(s.handleVoters))
	mux.HandleFunc("/api/admin/reset", s.admin(s.handleReset))

	mux.Handle("/metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
	return mux
}

func (s *Server) admin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(AdminTokenHeader)
		if s.config.AdminToken == "" ||
			subtle.ConstantTimeCompare([]byte(token), []byte(s.config.AdminToken)) != 1 {
			s.log.Warn("Rejected admin request", zap.String("path", r.URL.Path))
			writeError(w, http.StatusUnauthorized, errors.New("admin token required"))
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := ErrorResponse{Error: err.Error()}
	if r, ok := service.AsRejection(err); ok {
		resp.Reason = r.Reason.String()
	}
	writeJSON(w, status, resp)
}

func methodNotAllowed(w http.ResponseWriter) {
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}

// statusFor maps service and chain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrDoubleVote),
		errors.Is(err, service.ErrRosterFrozen),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, registry.ErrDuplicateVoter):
		return http.StatusConflict
	case errors.Is(err, service.ErrVotingNotActive):
		return http.StatusForbidden
	case errors.Is(err, service.ErrBadSignature),
		errors.Is(err, registry.ErrVoterNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, blockchain.ErrBlockNotFound),
		errors.Is(err, service.ErrCandidateNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrMiningTimeout):
		return http.StatusServiceUnavailable
	case errors.Is(err, blockchain.ErrPersistenceFailure),
		errors.Is(err, blockchain.ErrChainCorrupt):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) handleRegisterVoter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.voters == nil {
		writeError(w, http.StatusNotFound, errors.New("voter registration is disabled"))
		return
	}

	var req RegisterVoterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	dob, err := time.Parse("2006-01-02", req.DateOfBirth)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("dob must be formatted as YYYY-MM-DD"))
		return
	}

	voter, privateKey, err := s.voters.Register(req.Name, dob)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusCreated, RegisterVoterResponse{
		VoterID:    voter.ID,
		PublicKey:  voter.PublicKey,
		PrivateKey: privateKey,
	})
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req CastVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	ballot := service.Ballot{
		Identity:    req.Identity,
		CandidateID: req.CandidateID,
		Signature:   req.Signature,
		PrivateKey:  req.PrivateKey,
	}

	var (
		receipt *service.Receipt
		err     error
	)
	if s.queue != nil {
		receipt, err = s.queue.Submit(r.Context(), ballot)
	} else {
		receipt, err = s.votingService.SubmitVote(r.Context(), ballot)
	}
	if err != nil {
		status := statusFor(err)
		if errors.Is(err, service.ErrQueueFull) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err)
		return
	}

	status := http.StatusCreated
	if receipt.Block == nil {
		status = http.StatusAccepted
	}
	writeJSON(w, status, receipt)
}

func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if s.session.IsActive() {
		writeError(w, http.StatusForbidden, errors.New("results are hidden while voting is active"))
		return
	}

	candidates := s.session.Candidates()
	results := service.Tally(s.votingService.ListBlocks(), candidates)
	writeJSON(w, http.StatusOK, ResultsResponse{
		Results: results,
		Ranking: results.Ranking(candidates),
	})
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	resp := StatusResponse{
		Session: s.session.Status(),
		Chain:   s.votingService.Status(),
	}
	if s.voters != nil {
		resp.Voters = s.voters.Count()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.session.Candidates())
	case http.MethodPost:
		s.admin(s.handleAddCandidate)(w, r)
	case http.MethodDelete:
		s.admin(s.handleRemoveCandidate)(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleAddCandidate(w http.ResponseWriter, r *http.Request) {
	var req AddCandidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	c, err := s.session.AddCandidate(req.Name, req.Party)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.log.Info("Candidate added", zap.String("id", c.ID), zap.String("name", c.Name))
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleRemoveCandidate(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("candidate id is required"))
		return
	}
	if err := s.session.RemoveCandidate(id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.log.Info("Candidate removed", zap.String("id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetBlockchain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	blocks := s.votingService.ListBlocks()
	writeJSON(w, http.StatusOK, BlockchainResponse{
		BlockCount: len(blocks),
		Blocks:     blocks,
		IsValid:    s.votingService.ValidateChain() == nil,
		LastHash:   blocks[len(blocks)-1].Hash,
	})
}

func (s *Server) handleGetBlock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	index, err := strconv.ParseUint(r.URL.Query().Get("index"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("block index is required"))
		return
	}
	block, err := s.votingService.InspectBlock(index)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	calculated := models.CalculateHash(block)
	writeJSON(w, http.StatusOK, BlockDetailsResponse{
		Block: block,
		Verification: BlockVerification{
			CalculatedHash: calculated,
			StoredHash:     block.Hash,
			HashMatch:      calculated == block.Hash,
		},
	})
}

func (s *Server) handleValidateChain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	resp := ValidationResponse{IsValid: true}
	if err := s.votingService.ValidateChain(); err != nil {
		resp = ValidationResponse{IsValid: false, Error: err.Error()}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetBlockchainStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, s.votingService.Status())
}

func (s *Server) handleStartElection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := s.session.Start(); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.log.Info("Voting started")
	writeJSON(w, http.StatusOK, s.session.Status())
}

// handleEndElection closes voting and seals anything still pending so the results
// cover every admitted vote.
func (s *Server) handleEndElection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := s.session.End(); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if _, err := s.votingService.SealPending(r.Context()); err != nil {
		s.log.Error("Failed to seal pending votes at election end", zap.Error(err))
		writeError(w, statusFor(err), err)
		return
	}
	s.log.Info("Voting ended")
	writeJSON(w, http.StatusOK, s.session.Status())
}

func (s *Server) handleSeal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	block, err := s.votingService.SealPending(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if block == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusCreated, block)
}

func (s *Server) handleVoters(w http.ResponseWriter, r *http.Request) {
	if s.voters == nil {
		writeError(w, http.StatusNotFound, errors.New("voter registry is disabled"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.voters.List())
	case http.MethodDelete:
		id := r.URL.Query().Get("id")
		if err := s.voters.Remove(id); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		s.log.Info("Voter removed", zap.String("id", id))
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := s.votingService.ResetChain(r.Context()); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.votingService.Status())
}
