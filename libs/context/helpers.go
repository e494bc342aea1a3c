package context

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// GetLogger - return the logger from the context, error if absent
func GetLogger(ctx context.Context) (*zerolog.Logger, error) {
	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		// zerolog.Ctx returns a disabled logger when none has been associated
		return nil, ErrNotInContext
	}
	return logger, nil
}

// GetStringFromContext - given a CTXKey return the string value from the context
func GetStringFromContext(ctx context.Context, key CTXKey) (string, error) {
	v := ctx.Value(key)
	if v == nil {
		return "", ErrNotInContext
	}
	s, ok := v.(string)
	if !ok {
		return "", ErrValueWrongType
	}
	return s, nil
}

// GetDurationFromContext - given a CTXKey return the duration value from the context
func GetDurationFromContext(ctx context.Context, key CTXKey) (time.Duration, error) {
	v := ctx.Value(key)
	if v == nil {
		return 0, ErrNotInContext
	}
	d, ok := v.(time.Duration)
	if !ok {
		return 0, ErrValueWrongType
	}
	return d, nil
}

// GetLogLevelFromContext - given a CTXKey return the log level stored there, info if absent
func GetLogLevelFromContext(ctx context.Context, key CTXKey) (zerolog.Level, error) {
	v := ctx.Value(key)
	if v == nil {
		return zerolog.InfoLevel, ErrNotInContext
	}
	l, ok := v.(zerolog.Level)
	if !ok {
		return zerolog.InfoLevel, ErrValueWrongType
	}
	return l, nil
}
