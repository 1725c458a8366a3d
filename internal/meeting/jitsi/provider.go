// Package jitsi builds Jitsi Meet room links. Jitsi creates rooms on first
// join, so provisioning is a pure URL computation.
package jitsi

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/DukeRupert/kinship/internal/meeting"
)

// DefaultBaseURL is the public Jitsi Meet instance.
const DefaultBaseURL = "https://meet.jit.si"

// Config holds the Jitsi settings.
type Config struct {
	BaseURL    string // e.g. https://meet.example.com
	RoomPrefix string // prepended to every room name
}

// Provider implements meeting.Provider for Jitsi Meet.
type Provider struct {
	base   *url.URL
	prefix string
}

// New validates cfg and creates a Provider.
func New(cfg Config) (*Provider, error) {
	raw := cfg.BaseURL
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse jitsi base url: %w", err)
	}
	if base.Scheme != "https" && base.Scheme != "http" {
		return nil, fmt.Errorf("jitsi base url must be http(s), got %q", raw)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("jitsi base url has no host: %q", raw)
	}
	return &Provider{base: base, prefix: cfg.RoomPrefix}, nil
}

// Name implements meeting.Provider.
func (p *Provider) Name() string {
	return "jitsi"
}

// CreateMeeting implements meeting.Provider. The room name is derived from
// the session ID so repeated calls return the same room.
func (p *Provider) CreateMeeting(ctx context.Context, params meeting.CreateMeetingParams) (string, error) {
	room := p.prefix + strings.ReplaceAll(params.SessionID.String(), "-", "")
	return p.base.JoinPath(room).String(), nil
}
