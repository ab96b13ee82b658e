package recovery_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ghostrelay/controlplane/internal/recovery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_MatchesKnownKeywords(t *testing.T) {
	cases := map[string]recovery.ErrorType{
		"connection refused by peer":     recovery.ErrorNetwork,
		"validation failed: required field missing": recovery.ErrorValidation,
		"request timed out after 5s":     recovery.ErrorTimeout,
		"unauthorized: bad signature":    recovery.ErrorAuthentication,
		"sql: no rows in result set":     recovery.ErrorDatabase,
		"disk full, cannot write":        recovery.ErrorResource,
		"panic: runtime error":           recovery.ErrorSystem,
		"something entirely unexpected":  recovery.ErrorUnknown,
	}
	for msg, want := range cases {
		assert.Equal(t, want, recovery.Classify(errors.New(msg)), msg)
	}
}

func TestClassify_NilErrorIsUnknown(t *testing.T) {
	assert.Equal(t, recovery.ErrorUnknown, recovery.Classify(nil))
}

func TestHandle_RetryActionRetriesUntilSuccess(t *testing.T) {
	h := recovery.New(recovery.Config{MaxRetries: 3, RetryDelay: time.Millisecond}, nil)

	attempts := 0
	op := func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection refused")
		}
		return nil
	}

	decision := h.Handle(context.Background(), errors.New("connection refused"), op)
	assert.Equal(t, recovery.ActionRetry, decision.Action)
	assert.Contains(t, decision.Outcome, "succeeded on attempt 3")
	assert.Equal(t, 3, attempts)
}

func TestHandle_RetryExhaustsAndRecordsFailure(t *testing.T) {
	h := recovery.New(recovery.Config{MaxRetries: 1, RetryDelay: time.Millisecond}, nil)

	op := func(ctx context.Context) error { return errors.New("network timeout") }
	decision := h.Handle(context.Background(), errors.New("timeout exceeded"), op)

	assert.Equal(t, recovery.ActionRetry, decision.Action)
	assert.Contains(t, decision.Outcome, "exhausted 1 retries")
}

func TestHandle_EscalateNotifiesAndRecords(t *testing.T) {
	var notified []string
	notifier := notifierFunc(func(ctx context.Context, level, text string) error {
		notified = append(notified, level+":"+text)
		return nil
	})

	h := recovery.New(recovery.Config{Notifier: notifier}, nil)
	decision := h.Handle(context.Background(), errors.New("unauthorized access"), nil)

	assert.Equal(t, recovery.ActionEscalate, decision.Action)
	assert.Equal(t, "escalated", decision.Outcome)
	require.Len(t, notified, 1)
	assert.Contains(t, notified[0], "critical:")
}

func TestHandle_RecordsHistoryAndStats(t *testing.T) {
	h := recovery.New(recovery.Config{MaxRetries: 0}, nil)

	h.Handle(context.Background(), errors.New("schema validation failed"), nil)
	h.Handle(context.Background(), errors.New("schema validation failed"), nil)

	history := h.History()
	require.Len(t, history, 2)

	stats := h.Stats()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.ByType[string(recovery.ErrorValidation)])
	assert.Equal(t, 2, stats.ByAction[string(recovery.ActionIgnore)])
}

type notifierFunc func(ctx context.Context, level, text string) error

func (f notifierFunc) Notify(ctx context.Context, level, text string) error {
	return f(ctx, level, text)
}
