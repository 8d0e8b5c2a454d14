package service

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrQueueFull is returned when a ballot cannot be queued without blocking.
var ErrQueueFull = errors.New("vote queue is full")

// ErrQueueStopped is returned for ballots queued after Stop.
var ErrQueueStopped = errors.New("vote queue is stopped")

// QueueProcessor serializes ballot submissions through a single worker goroutine.
type QueueProcessor struct {
	votingService *VotingService
	voteCh        chan *VoteRequest
	shutdownCh    chan struct{}
	processingWg  sync.WaitGroup

	// mu orders enqueues against Stop: nothing is sent once stopped is set.
	mu      sync.Mutex
	stopped bool
	log     *zap.Logger
}

// VoteRequest is a queued ballot and the channel its result is delivered on.
type VoteRequest struct {
	Ctx      context.Context
	Ballot   Ballot
	ResultCh chan<- *ProcessingResult
}

type ProcessingResult struct {
	Receipt *Receipt
	Err     error
}

func NewQueueProcessor(votingService *VotingService, queueSize int, log *zap.Logger) *QueueProcessor {
	if log == nil {
		log = zap.NewNop()
	}
	return &QueueProcessor{
		votingService: votingService,
		voteCh:        make(chan *VoteRequest, queueSize),
		shutdownCh:    make(chan struct{}),
		log:           log,
	}
}

func (qp *QueueProcessor) Start() {
	qp.processingWg.Add(1)
	go qp.voteWorker()
}

// Stop waits for the worker to exit. Ballots still queued are answered with
// ErrQueueStopped.
func (qp *QueueProcessor) Stop() {
	qp.mu.Lock()
	if !qp.stopped {
		qp.stopped = true
		close(qp.shutdownCh)
	}
	qp.mu.Unlock()
	qp.processingWg.Wait()

	for {
		select {
		case req := <-qp.voteCh:
			req.ResultCh <- &ProcessingResult{Err: ErrQueueStopped}
			close(req.ResultCh)
		default:
			return
		}
	}
}

// QueueVote enqueues a ballot. The returned channel receives exactly one result.
func (qp *QueueProcessor) QueueVote(ctx context.Context, b Ballot) <-chan *ProcessingResult {
	resultCh := make(chan *ProcessingResult, 1)

	qp.mu.Lock()
	defer qp.mu.Unlock()
	if qp.stopped {
		resultCh <- &ProcessingResult{Err: ErrQueueStopped}
		close(resultCh)
		return resultCh
	}

	select {
	case qp.voteCh <- &VoteRequest{Ctx: ctx, Ballot: b, ResultCh: resultCh}:
	default:
		qp.log.Warn("Vote queue is full, ballot dropped", zap.Int("capacity", cap(qp.voteCh)))
		resultCh <- &ProcessingResult{Err: ErrQueueFull}
		close(resultCh)
	}
	return resultCh
}

// Submit queues a ballot and waits for its result or for ctx to end.
func (qp *QueueProcessor) Submit(ctx context.Context, b Ballot) (*Receipt, error) {
	select {
	case res := <-qp.QueueVote(ctx, b):
		return res.Receipt, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (qp *QueueProcessor) voteWorker() {
	defer qp.processingWg.Done()

	for {
		select {
		case <-qp.shutdownCh:
			return
		case req := <-qp.voteCh:
			ctx := req.Ctx
			if ctx == nil {
				ctx = context.Background()
			}
			receipt, err := qp.votingService.SubmitVote(ctx, req.Ballot)
			req.ResultCh <- &ProcessingResult{Receipt: receipt, Err: err}
			close(req.ResultCh)
		}
	}
}
