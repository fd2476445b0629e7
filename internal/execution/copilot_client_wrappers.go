package execution

import (
	"context"

	copilot "github.com/github/copilot-sdk/go"
)

//go:generate go tool mockgen -source=copilot_client_wrappers.go -destination=copilot_client_wrappers_mock_test.go -package=execution

// copilotSession is just an interface over [*copilot.Session]
type copilotSession interface {
	// On maps to [copilot.Session.On]
	On(handler copilot.SessionEventHandler) func()

	// SendAndWait maps to [copilot.Session.SendAndWait]
	SendAndWait(ctx context.Context, options copilot.MessageOptions) (*copilot.SessionEvent, error)

	// SessionID returns [copilot.Session.SessionID]
	SessionID() string
}

// copilotClient is just an interface over [*copilot.Client]
type copilotClient interface {
	// CreateSession maps to [copilot.Client.CreateSession]
	CreateSession(ctx context.Context, config *copilot.SessionConfig) (copilotSession, error)

	// Start maps to [copilot.Client.Start]
	Start(ctx context.Context) error

	// Stop maps to [copilot.Client.Stop]
	Stop() error
}

func newCopilotClient(clientOptions *copilot.ClientOptions) copilotClient {
	return &copilotClientWrapper{
		inner: copilot.NewClient(clientOptions),
	}
}

type copilotClientWrapper struct {
	inner *copilot.Client
}

func (w *copilotClientWrapper) CreateSession(ctx context.Context, config *copilot.SessionConfig) (copilotSession, error) {
	sess, err := w.inner.CreateSession(ctx, config)
	if err != nil {
		return nil, err
	}
	return &copilotSessionWrapper{inner: sess}, nil
}

func (w *copilotClientWrapper) Start(ctx context.Context) error {
	return w.inner.Start(ctx)
}

func (w *copilotClientWrapper) Stop() error {
	return w.inner.Stop()
}

// copilotSessionWrapper forwards to [copilot.Session]. It exists because
// [copilot.Session.SessionID] is a field and can't be part of an interface.
type copilotSessionWrapper struct {
	inner *copilot.Session
}

func (w *copilotSessionWrapper) On(handler copilot.SessionEventHandler) func() {
	return w.inner.On(handler)
}

func (w *copilotSessionWrapper) SendAndWait(ctx context.Context, options copilot.MessageOptions) (*copilot.SessionEvent, error) {
	return w.inner.SendAndWait(ctx, options)
}

func (w *copilotSessionWrapper) SessionID() string {
	return w.inner.SessionID
}
