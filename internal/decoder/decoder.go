// Package decoder turns raw ledger events into typed change requests.
package decoder

import (
	"context"
	"fmt"
	"math/big"
	"runtime"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rpattn/entityindexer/internal/domain"
)

// Decoder converts the manage-entity events of a block into change requests.
// Decoding is pure, so transactions are decoded concurrently.
type Decoder struct {
	logger  *zap.Logger
	workers int
}

// New creates a decoder.
func New(logger *zap.Logger) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{logger: logger.Named("decoder"), workers: runtime.GOMAXPROCS(0)}
}

// Decode returns one request per event in transaction order, then emission
// order within each transaction. Events that cannot be decoded come back as
// malformed requests; only context cancellation fails the call.
func (d *Decoder) Decode(ctx context.Context, block domain.Block) ([]domain.ChangeRequest, error) {
	decoded := make([][]domain.ChangeRequest, len(block.Transactions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for i := range block.Transactions {
		txIndex := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			decoded[txIndex] = d.decodeTransaction(block, txIndex)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to decode block %d: %w", block.Number, err)
	}

	var requests []domain.ChangeRequest
	for _, txRequests := range decoded {
		requests = append(requests, txRequests...)
	}

	malformed := 0
	for _, req := range requests {
		if req.IsMalformed() {
			malformed++
		}
	}
	d.logger.Debug("block decoded",
		zap.Int64("block", block.Number),
		zap.Int("requests", len(requests)),
		zap.Int("malformed", malformed))
	return requests, nil
}

func (d *Decoder) decodeTransaction(block domain.Block, txIndex int) []domain.ChangeRequest {
	tx := block.Transactions[txIndex]
	requests := make([]domain.ChangeRequest, 0, len(tx.Events))
	for logIndex, event := range tx.Events {
		req := domain.ChangeRequest{
			BlockNumber:    block.Number,
			BlockTimestamp: block.Timestamp,
			TxHash:         tx.Hash,
			TxIndex:        txIndex,
			LogIndex:       logIndex,
		}
		if err := decodeEvent(&req, event, block.Metadata); err != nil {
			req.Malformed = err.Error()
		}
		requests = append(requests, req)
	}
	return requests
}

func decodeEvent(req *domain.ChangeRequest, event domain.RawEvent, resolved map[string]map[string]any) error {
	if event.DecodeError != "" {
		return fmt.Errorf("undecodable log: %s", event.DecodeError)
	}

	entityType, err := domain.ParseEntityType(event.EntityType)
	if err != nil {
		return err
	}
	req.EntityType = entityType

	action, err := domain.ParseAction(event.Action)
	if err != nil {
		return err
	}
	req.Action = action

	if req.EntityID, err = toID("entity id", event.EntityID); err != nil {
		return err
	}
	if req.ActingUserID, err = toID("user id", event.UserID); err != nil {
		return err
	}

	req.Signer = normalizeSigner(event.Signer)

	metadata, err := ParseMetadata(event.Metadata, resolved)
	if err != nil {
		return err
	}
	req.Metadata = metadata
	return nil
}

// normalizeSigner lower-cases the signer. Whether it matches a wallet is
// decided during authorization.
func normalizeSigner(signer string) string {
	signer = strings.TrimSpace(signer)
	if common.IsHexAddress(signer) {
		return strings.ToLower(common.HexToAddress(signer).Hex())
	}
	return strings.ToLower(signer)
}

func toID(name string, value *big.Int) (int64, error) {
	if value == nil {
		return 0, fmt.Errorf("missing %s", name)
	}
	if value.Sign() < 0 || !value.IsInt64() {
		return 0, fmt.Errorf("%s %s out of range", name, value.String())
	}
	return value.Int64(), nil
}
