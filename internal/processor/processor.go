// Package processor applies the change requests of a block as one atomic
// unit of work.
package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rpattn/entityindexer/internal/auth"
	"github.com/rpattn/entityindexer/internal/decoder"
	"github.com/rpattn/entityindexer/internal/domain"
	"github.com/rpattn/entityindexer/internal/events"
	"github.com/rpattn/entityindexer/internal/handlers"
	"github.com/rpattn/entityindexer/internal/metrics"
	"github.com/rpattn/entityindexer/internal/repository"
	"github.com/rpattn/entityindexer/internal/slug"
)

// Processor decodes, authorizes, validates and stores the requests of one
// block at a time.
type Processor struct {
	mu sync.Mutex

	store     repository.Store
	registry  *handlers.Registry
	decoder   *decoder.Decoder
	resolver  *slug.Resolver
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithPublisher sets the change event feed.
func WithPublisher(publisher events.Publisher) Option {
	return func(p *Processor) {
		if publisher != nil {
			p.publisher = publisher
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithClock overrides the clock used for checkpoint timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

// New creates a processor.
func New(store repository.Store, registry *handlers.Registry, opts ...Option) *Processor {
	p := &Processor{
		store:     store,
		registry:  registry,
		publisher: events.Nop{},
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("processor")
	p.decoder = decoder.New(p.logger)
	p.resolver = slug.NewResolver(p.logger)
	return p
}

// Process applies block in one storage transaction. Rejected, unauthorized
// and malformed requests are reported in the result. A storage failure rolls
// the whole block back and returns an error wrapping domain.ErrStorageFailure.
func (p *Processor) Process(ctx context.Context, block domain.Block) (domain.BlockResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	started := time.Now()
	requests, err := p.decoder.Decode(ctx, block)
	if err != nil {
		return domain.BlockResult{}, err
	}

	var (
		result  domain.BlockResult
		changes []domain.ChangeEvent
	)
	err = p.store.WithBlockTx(ctx, func(tx repository.BlockTx) error {
		var applyErr error
		result, changes, applyErr = p.applyBlock(ctx, tx, block, requests)
		return applyErr
	})
	if err != nil {
		p.metrics.ObserveFailedBlock(started)
		p.logger.Error("block rolled back",
			zap.Int64("block", block.Number),
			zap.String("hash", block.Hash),
			zap.Error(err))
		return domain.BlockResult{}, fmt.Errorf("%w: block %d: %w", domain.ErrStorageFailure, block.Number, err)
	}

	p.metrics.ObserveBlock(result, started)
	if len(changes) > 0 {
		if err := p.publisher.Publish(ctx, changes); err != nil {
			p.metrics.ObservePublishFailure()
			p.logger.Warn("failed to publish change events",
				zap.Int64("block", block.Number),
				zap.Int("events", len(changes)),
				zap.Error(err))
		}
	}

	counts := result.CountByStatus()
	p.logger.Info("block committed",
		zap.Int64("block", block.Number),
		zap.Int("accepted", result.Accepted),
		zap.Int("rejected", counts[domain.OutcomeRejected]),
		zap.Int("unauthorized", counts[domain.OutcomeUnauthorized]),
		zap.Int("malformed", counts[domain.OutcomeMalformed]),
		zap.Duration("elapsed", time.Since(started)))
	return result, nil
}

// DryRun runs the full pipeline for block inside a transaction that is
// always rolled back, and publishes nothing.
func (p *Processor) DryRun(ctx context.Context, block domain.Block) (domain.BlockResult, error) {
	var result domain.BlockResult
	err := p.DryRunBlocks(ctx,
		func(fn func(domain.Block) error) error { return fn(block) },
		func(r domain.BlockResult) error {
			result = r
			return nil
		})
	return result, err
}

// DryRunBlocks runs every block yielded by each, in order, inside one
// transaction that is always rolled back. Later blocks see the writes and
// checkpoints of earlier ones exactly as a committed run would. emit receives
// each result; nothing is published.
func (p *Processor) DryRunBlocks(ctx context.Context, each func(func(domain.Block) error) error, emit func(domain.BlockResult) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.store.WithDiscardedTx(ctx, func(tx repository.BlockTx) error {
		return each(func(block domain.Block) error {
			requests, err := p.decoder.Decode(ctx, block)
			if err != nil {
				return err
			}
			result, _, err := p.applyBlock(ctx, tx, block, requests)
			if err != nil {
				return fmt.Errorf("%w: block %d: %w", domain.ErrStorageFailure, block.Number, err)
			}
			return emit(result)
		})
	})
}

// LastIndexedBlock returns the newest committed block checkpoint.
func (p *Processor) LastIndexedBlock(ctx context.Context) (domain.IndexedBlock, bool, error) {
	var (
		block domain.IndexedBlock
		found bool
	)
	err := p.store.WithDiscardedTx(ctx, func(tx repository.BlockTx) error {
		var err error
		block, found, err = tx.LastIndexedBlock(ctx)
		return err
	})
	return block, found, err
}

// applyBlock applies requests and records the ingestion log and checkpoint
// of block in tx.
func (p *Processor) applyBlock(ctx context.Context, tx repository.BlockTx, block domain.Block, requests []domain.ChangeRequest) (domain.BlockResult, []domain.ChangeEvent, error) {
	result, changes, err := p.apply(ctx, tx, block, requests)
	if err != nil {
		return domain.BlockResult{}, nil, err
	}
	indexedAt := p.now().UTC()
	if err := tx.RecordIngestionLog(ctx, block.Number, result.IngestionLog(indexedAt)); err != nil {
		return domain.BlockResult{}, nil, err
	}
	err = tx.RecordBlock(ctx, domain.IndexedBlock{
		Number:    block.Number,
		Hash:      block.Hash,
		Accepted:  result.Accepted,
		Skipped:   result.Skipped(),
		IndexedAt: indexedAt,
	})
	if err != nil {
		return domain.BlockResult{}, nil, err
	}
	return result, changes, nil
}

func (p *Processor) apply(ctx context.Context, tx repository.BlockTx, block domain.Block, requests []domain.ChangeRequest) (domain.BlockResult, []domain.ChangeEvent, error) {
	result := domain.BlockResult{
		BlockNumber: block.Number,
		BlockHash:   block.Hash,
		Outcomes:    make([]domain.Outcome, 0, len(requests)),
	}

	wallets := auth.NewWalletLoader(auth.WalletsFromStore(tx))
	actingUsers := make([]int64, 0, len(requests))
	for _, req := range requests {
		if !req.IsMalformed() {
			actingUsers = append(actingUsers, req.ActingUserID)
		}
	}
	if err := wallets.Prefetch(ctx, actingUsers); err != nil {
		return domain.BlockResult{}, nil, err
	}
	validator := auth.NewValidator(wallets, tx)

	var changes []domain.ChangeEvent
	for i, req := range requests {
		outcome, err := p.applyRequest(ctx, tx, validator, wallets, req)
		if err != nil {
			return domain.BlockResult{}, nil, fmt.Errorf("request %d (%s %s %d): %w", i, req.Action, req.EntityType, req.EntityID, err)
		}
		outcome.Index = i
		result.Outcomes = append(result.Outcomes, outcome)
		if outcome.Status == domain.OutcomeAccepted {
			result.Accepted++
			changes = append(changes, domain.NewChangeEvent(req))
			continue
		}
		p.logger.Debug("request skipped",
			zap.Int64("block", req.BlockNumber),
			zap.String("tx", req.TxHash),
			zap.Int("log_index", req.LogIndex),
			zap.String("status", string(outcome.Status)),
			zap.String("reason", outcome.Reason))
	}
	return result, changes, nil
}

func (p *Processor) applyRequest(ctx context.Context, tx repository.BlockTx, validator *auth.Validator, wallets *auth.WalletLoader, req domain.ChangeRequest) (domain.Outcome, error) {
	outcome := domain.Outcome{
		TxHash:     req.TxHash,
		TxIndex:    req.TxIndex,
		LogIndex:   req.LogIndex,
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		Action:     req.Action,
	}
	skip := func(status domain.OutcomeStatus, reason string) (domain.Outcome, error) {
		outcome.Status = status
		outcome.Reason = reason
		return outcome, nil
	}

	if req.IsMalformed() {
		return skip(domain.OutcomeMalformed, req.Malformed)
	}

	handler, ok := p.registry.Lookup(req.EntityType)
	if !ok {
		return skip(domain.OutcomeRejected, fmt.Sprintf("no handler registered for %s", req.EntityType))
	}

	current, hasCurrent, err := tx.CurrentVersion(ctx, req.EntityType, req.EntityID)
	if err != nil {
		return outcome, err
	}
	var previous *domain.VersionedEntity
	if hasCurrent {
		previous = &current
	}

	decision, err := validator.Authorize(ctx, req, previous)
	if err != nil {
		return outcome, err
	}
	if !decision.Authorized {
		return skip(domain.OutcomeUnauthorized, decision.Reason)
	}

	var change domain.Change
	switch req.Action {
	case domain.ActionCreate:
		change, err = handler.ValidateCreate(ctx, req, tx)
	case domain.ActionUpdate:
		if !hasCurrent {
			return skip(domain.OutcomeRejected, fmt.Sprintf("%s %d does not exist", req.EntityType, req.EntityID))
		}
		change, err = handler.ValidateUpdate(ctx, req, current, tx)
	case domain.ActionDelete:
		if !hasCurrent {
			return skip(domain.OutcomeRejected, fmt.Sprintf("%s %d does not exist", req.EntityType, req.EntityID))
		}
		change, err = handler.ValidateDelete(ctx, req, current)
	default:
		return skip(domain.OutcomeMalformed, fmt.Sprintf("unknown action %q", req.Action))
	}
	if err != nil {
		if rejection, ok := domain.AsRejection(err); ok {
			return skip(domain.OutcomeRejected, rejection.Reason)
		}
		return outcome, err
	}

	handler.ApplyMetadataSideEffects(&change, previous)

	if _, err := tx.ApplyVersion(ctx, change.Version()); err != nil {
		if errors.Is(err, repository.ErrOutOfOrder) {
			return skip(domain.OutcomeRejected, err.Error())
		}
		return outcome, err
	}

	if change.Route != nil {
		if _, err := p.resolver.Resolve(ctx, tx, *change.Route, req.BlockNumber, req.TxHash); err != nil {
			return outcome, err
		}
	}

	if req.EntityType == domain.EntityTypeUser {
		wallets.Forget(ctx, req.EntityID)
	}

	outcome.Status = domain.OutcomeAccepted
	return outcome, nil
}
