package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSMTPNotifier_ParsesAndTrimsRecipients(t *testing.T) {
	n := NewSMTPNotifier("smtp.local:25", "reconcile@example.com", " a@example.com, b@example.com ,,")
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, n.To)
}

func TestSMTPNotifier_NotifyNoRecipientsIsNoop(t *testing.T) {
	n := SMTPNotifier{Addr: "smtp.local:25", From: "reconcile@example.com"}
	require.NoError(t, n.Notify(context.Background(), "inst-a", "run-1", errors.New("boom")))
}

func TestSuppressingNotifier_DropsSuppressedUnit(t *testing.T) {
	var called bool
	inner := fakeNotifier(func(context.Context, string, string, error) error {
		called = true
		return nil
	})

	s := SuppressingNotifier{
		Next:     inner,
		Suppress: map[string]struct{}{"unit-1": {}},
		UnitOfErr: func(err error) (string, bool) {
			return "unit-1", true
		},
	}

	require.NoError(t, s.Notify(context.Background(), "inst-a", "run-1", errors.New("boom")))
	assert.False(t, called)
}

func TestSuppressingNotifier_PassesThroughUnsuppressed(t *testing.T) {
	var called bool
	inner := fakeNotifier(func(context.Context, string, string, error) error {
		called = true
		return nil
	})

	s := SuppressingNotifier{
		Next:     inner,
		Suppress: map[string]struct{}{"unit-1": {}},
		UnitOfErr: func(err error) (string, bool) {
			return "unit-2", true
		},
	}

	require.NoError(t, s.Notify(context.Background(), "inst-a", "run-1", errors.New("boom")))
	assert.True(t, called)
}

func TestNoopNotifier_NeverErrors(t *testing.T) {
	require.NoError(t, NoopNotifier{}.Notify(context.Background(), "inst-a", "run-1", errors.New("boom")))
}

type fakeNotifier func(ctx context.Context, institution, runID string, cause error) error

func (f fakeNotifier) Notify(ctx context.Context, institution, runID string, cause error) error {
	return f(ctx, institution, runID, cause)
}
