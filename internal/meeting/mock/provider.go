package mock

import (
	"context"
	"log/slog"
	"sync"

	"github.com/DukeRupert/kinship/internal/meeting"
)

// Provider is a mock meeting provider for testing and development
type Provider struct {
	logger *slog.Logger

	// Configurable error for testing
	CreateMeetingError error

	mu    sync.Mutex
	calls int
}

// New creates a new mock meeting provider
func New(logger *slog.Logger) *Provider {
	return &Provider{logger: logger}
}

// Name implements meeting.Provider.
func (p *Provider) Name() string {
	return "mock"
}

// CreateMeeting returns a deterministic URL for the session.
func (p *Provider) CreateMeeting(ctx context.Context, params meeting.CreateMeetingParams) (string, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	if p.CreateMeetingError != nil {
		return "", p.CreateMeetingError
	}

	url := "https://meet.invalid/" + params.SessionID.String()
	p.logger.Debug("mock meeting created", "session_id", params.SessionID, "url", url)
	return url, nil
}

// Calls returns how many times CreateMeeting was invoked.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
