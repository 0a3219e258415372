package notify

import (
	"context"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func TestMailerDropsWhenUninitialized(t *testing.T) {
	m := NewMailer(slog.Default(), asynq.RedisClientOpt{Addr: "127.0.0.1:0"})

	// Must not panic or block; the notification is logged and dropped.
	m.WelcomeAccount(context.Background(), "anna@example.org", "Anna")
	require.NoError(t, m.Shutdown(), "shutdown before init is a no-op")
}

func TestMailerEnqueuesWelcomeMail(t *testing.T) {
	mr := miniredis.RunT(t)
	m := NewMailer(slog.Default(), asynq.RedisClientOpt{Addr: mr.Addr()})

	require.NoError(t, m.Init())
	require.NoError(t, m.Init(), "init is idempotent")
	defer func() { require.NoError(t, m.Shutdown()) }()

	m.WelcomeAccount(context.Background(), "anna@example.org", "Anna")
	require.NotEmpty(t, mr.Keys(), "a task landed on the queue")
}

func TestMailerSwallowsEnqueueFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	m := NewMailer(slog.Default(), asynq.RedisClientOpt{Addr: mr.Addr()})
	require.NoError(t, m.Init())
	defer func() { _ = m.Shutdown() }()

	mr.Close()
	// The queue is gone; the call must still return normally.
	m.WelcomeAccount(context.Background(), "anna@example.org", "Anna")
}

func TestNopSender(t *testing.T) {
	NopSender{}.WelcomeAccount(context.Background(), "anna@example.org", "Anna")
}
