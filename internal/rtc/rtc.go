package rtc

import "context"

// Telemetry event names that carry finished transcript text.
const (
	EventUserTranscriptDone  = "conversation.item.input_audio_transcription.completed"
	EventAgentTranscriptDone = "response.audio_transcript.done"
)

// RealtimeEvent is one telemetry notification delivered over a live
// agent connection.
type RealtimeEvent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// AgentConnection is a live AI participant bridged into a call. Events
// are delivered in provider order until the connection closes.
type AgentConnection interface {
	Events() <-chan RealtimeEvent
	Close() error
}

type ChatMessage struct {
	UserID string
	Text   string
}

// Client is the real-time call/signaling provider: it bridges an AI
// participant into a call, controls the call, and hosts the post-call
// chat channel.
type Client interface {
	ConnectAgent(ctx context.Context, callID, instructions string) (AgentConnection, error)
	EndCall(ctx context.Context, callID string) error
	SendChannelMessage(ctx context.Context, channelID, fromUserID, text string) error
	ListChannelMessages(ctx context.Context, channelID string, limit int) ([]ChatMessage, error)
}
