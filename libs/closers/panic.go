package closers

import (
	"context"
	"errors"
	"io"

	"github.com/boltbox/boltbox/libs/logging"
)

// Panic calls Close on the specified closer, panicking on error
func Panic(ctx context.Context, c io.Closer) {
	logger := logging.Logger(ctx, "closers.Panic")
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		logger.Error().Err(err).Msg("error attempting to close")
		if errors.Is(err, context.Canceled) || err.Error() == "context canceled" {
			// the client timeout manifests as a context cancel when the
			// stream is not fully read, not worth dying over
			return
		}
		panic(err.Error())
	}
}

// Log calls Close on the specified closer, logging any error
func Log(ctx context.Context, c io.Closer) {
	logger := logging.Logger(ctx, "closers.Log")
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		logger.Error().Err(err).Msg("error attempting to close")
	}
}
