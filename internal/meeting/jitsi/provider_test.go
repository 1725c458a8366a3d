package jitsi

import (
	"context"
	"testing"

	"github.com/DukeRupert/kinship/internal/meeting"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "default base url", cfg: Config{}},
		{name: "custom base url", cfg: Config{BaseURL: "https://meet.example.com/"}},
		{name: "unsupported scheme", cfg: Config{BaseURL: "ftp://meet.example.com"}, wantErr: true},
		{name: "missing host", cfg: Config{BaseURL: "https://"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCreateMeeting_IsStablePerSession(t *testing.T) {
	p, err := New(Config{BaseURL: "https://meet.example.com/", RoomPrefix: "kinship-"})
	require.NoError(t, err)

	id := uuid.MustParse("0b8e7c1e-2f3a-4c5d-8e9f-0a1b2c3d4e5f")
	params := meeting.CreateMeetingParams{SessionID: id}

	first, err := p.CreateMeeting(context.Background(), params)
	require.NoError(t, err)
	second, err := p.CreateMeeting(context.Background(), params)
	require.NoError(t, err)

	assert.Equal(t, "https://meet.example.com/kinship-0b8e7c1e2f3a4c5d8e9f0a1b2c3d4e5f", first)
	assert.Equal(t, first, second)
}
