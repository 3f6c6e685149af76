// Package blocksource feeds blocks from a JSON-lines file into the processor.
package blocksource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/rpattn/entityindexer/internal/decoder"
	"github.com/rpattn/entityindexer/internal/domain"
)

// Processor is the part of the pipeline a source feeds.
type Processor interface {
	Process(ctx context.Context, block domain.Block) (domain.BlockResult, error)
	LastIndexedBlock(ctx context.Context) (domain.IndexedBlock, bool, error)
}

// fileBlock is one line of a block file. Transactions are given either
// already decoded or as raw receipt logs, never both, so their order always
// follows the ledger.
type fileBlock struct {
	domain.Block
	Logs []*types.Log `json:"logs,omitempty"`
}

// Summary describes one replay.
type Summary struct {
	Blocks   int
	Skipped  int
	Requests int
	Accepted int
}

// FileSource reads blocks from a JSON-lines file.
type FileSource struct {
	path   string
	logger *zap.Logger
}

// NewFileSource creates a source for path.
func NewFileSource(path string, logger *zap.Logger) *FileSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSource{path: path, logger: logger.Named("blocksource")}
}

// Each calls fn for every block in the file, in file order. Block numbers
// must strictly increase.
func (s *FileSource) Each(ctx context.Context, fn func(domain.Block) error) error {
	file, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open block file: %w", err)
	}
	defer file.Close()
	return readBlocks(ctx, file, fn)
}

// Replay processes every block above the last indexed one.
func (s *FileSource) Replay(ctx context.Context, p Processor) (Summary, error) {
	var summary Summary
	last, found, err := p.LastIndexedBlock(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to read indexing checkpoint: %w", err)
	}

	err = s.Each(ctx, func(block domain.Block) error {
		if found && block.Number <= last.Number {
			summary.Skipped++
			return nil
		}
		result, err := p.Process(ctx, block)
		if err != nil {
			return err
		}
		summary.Blocks++
		summary.Requests += len(result.Outcomes)
		summary.Accepted += result.Accepted
		return nil
	})
	if err != nil {
		return summary, err
	}

	s.logger.Info("replay finished",
		zap.String("file", s.path),
		zap.Int("blocks", summary.Blocks),
		zap.Int("skipped", summary.Skipped),
		zap.Int("requests", summary.Requests),
		zap.Int("accepted", summary.Accepted))
	return summary, nil
}

func readBlocks(ctx context.Context, r io.Reader, fn func(domain.Block) error) error {
	dec := json.NewDecoder(r)
	var (
		previous int64
		seen     bool
	)
	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		var line fileBlock
		if err := dec.Decode(&line); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to decode block %d of file: %w", index, err)
		}
		if seen && line.Number <= previous {
			return fmt.Errorf("block %d follows block %d: numbers must increase", line.Number, previous)
		}
		previous, seen = line.Number, true

		block := line.Block
		if len(line.Logs) > 0 {
			if len(block.Transactions) > 0 {
				return fmt.Errorf("block %d mixes transactions and logs", line.Number)
			}
			block.Transactions = decoder.TransactionsFromLogs(line.Logs)
		}
		if err := fn(block); err != nil {
			return err
		}
	}
}
