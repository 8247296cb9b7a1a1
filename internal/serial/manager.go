package serial

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRetryInterval is the fixed pause between failed open attempts.
const DefaultRetryInterval = 100 * time.Millisecond

// ErrRetriesExhausted reports that every allowed open attempt failed.
var ErrRetriesExhausted = errors.New("serial open retries exhausted")

// Manager opens links with a bounded retry policy.
type Manager struct {
	Opener        Opener
	Logger        *slog.Logger
	RetryInterval time.Duration
	// OnAttempt observes every attempt; err is nil on success.
	OnAttempt func(attempt int, err error)
}

// Open is shorthand for a Manager with the default retry interval.
func Open(ctx context.Context, s Settings, opener Opener, logger *slog.Logger) (*Link, error) {
	return Manager{Opener: opener, Logger: logger}.Open(ctx, s)
}

// Open makes up to s.MaxRetries attempts, the first included.
// MaxRetries of zero fails without touching the device.
func (m Manager) Open(ctx context.Context, s Settings) (*Link, error) {
	logger := m.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if m.Opener == nil {
		return nil, errors.New("serial opener is nil")
	}
	if s.MaxRetries <= 0 {
		return nil, fmt.Errorf("%w: %s: max_retries is %d", ErrRetriesExhausted, s.Port, s.MaxRetries)
	}

	interval := m.RetryInterval
	if interval <= 0 {
		interval = DefaultRetryInterval
	}

	var lastErr error
	for attempt := 1; attempt <= s.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		logger.Debug("opening serial port", "port", s.Port, "attempt", attempt)
		port, err := m.Opener.Open(s)
		if m.OnAttempt != nil {
			m.OnAttempt(attempt, err)
		}
		if err == nil {
			logger.Info("serial port open", "port", s.Port, "baud_rate", s.BaudRate, "attempt", attempt)
			return newLink(s, port, logger), nil
		}

		lastErr = err
		logger.Warn("serial open failed", "port", s.Port, "attempt", attempt, "max_retries", s.MaxRetries, "error", err)
		if attempt == s.MaxRetries {
			break
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrRetriesExhausted, s.Port, s.MaxRetries, lastErr)
}
