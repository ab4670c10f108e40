package extraction

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Chain tries a fixed, ordered list of extraction strategies until one
// yields a result with at least one action. The last strategy is expected
// to be the rule-based extractor, which always returns a result, so a
// fully-assembled chain only errors when every strategy returns nil and
// none is terminal.
type Chain struct {
	extractors []Extractor
	logger     *zap.Logger
}

// NewChain builds a strategy chain. Order matters: strategies are tried
// front to back.
func NewChain(logger *zap.Logger, extractors ...Extractor) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{extractors: extractors, logger: logger}
}

// Extract runs the chain. A strategy returning (nil, nil) or an empty
// action list falls through to the next one; an empty final result is
// still returned to the caller, because "no commitments found" is a valid
// outcome, not an error.
func (c *Chain) Extract(ctx context.Context, transcript string) (*Result, error) {
	var last *Result
	for _, e := range c.extractors {
		result, err := e.Extract(ctx, transcript)
		if err != nil {
			// Strategies are expected to degrade to nil rather than
			// error; treat an error the same way and fall through.
			c.logger.Warn("extraction strategy errored", zap.Error(err))
			continue
		}
		if result == nil {
			continue
		}
		last = result
		if len(result.Actions) > 0 {
			c.logger.Info("extraction succeeded",
				zap.String("method", result.Method),
				zap.Int("actions", len(result.Actions)),
			)
			return result, nil
		}
	}
	if last != nil {
		return last, nil
	}
	return nil, fmt.Errorf("no extraction strategy produced a result")
}

var _ Extractor = (*Chain)(nil)
