package memory

import (
	"context"
	"time"
)

// Turn is a completed user/assistant exchange together with the capability
// calls made while producing the answer.
type Turn struct {
	UserID    string        `json:"user_id"`
	SessionID string        `json:"session_id"`
	User      string        `json:"user"`
	Assistant string        `json:"assistant"`
	ToolCalls []ToolCall    `json:"tool_calls,omitempty"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}

// TranscriptArchive persists completed turns outside the process.
type TranscriptArchive interface {
	ArchiveTurn(ctx context.Context, turn Turn) error
	RecentTurns(ctx context.Context, userID string, limit int) ([]Turn, error)
	Close(ctx context.Context) error
}

// NopArchive discards turns.
type NopArchive struct{}

func (NopArchive) ArchiveTurn(context.Context, Turn) error { return nil }

func (NopArchive) RecentTurns(context.Context, string, int) ([]Turn, error) { return nil, nil }

func (NopArchive) Close(context.Context) error { return nil }
