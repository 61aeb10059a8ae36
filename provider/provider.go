// Package provider defines the outbound boundary to LLM provider
// adapters (spec §6): the core never talks to a specific vendor SDK
// directly, only to this interface, the way the teacher's pkg/agent
// talks to LLMClient instead of an OpenAI/Anthropic/etc. SDK.
package provider

import "context"

// AgentInput is one completion request.
type AgentInput struct {
	Text       string
	Parameters map[string]any
}

// AgentOutput is a completed (non-streaming) response.
type AgentOutput struct {
	Text string
	Raw  map[string]any
}

// Capabilities describes what a provider adapter supports, reported once
// and cached by callers.
type Capabilities struct {
	SupportsStreaming   bool
	SupportsMultimodal  bool
	MaxContextTokens    int
	MaxOutputTokens     int
}

// ChunkType identifies the kind of streaming chunk, mirroring the
// teacher's llm_client.go ChunkType taxonomy.
type ChunkType string

const (
	ChunkTypeText  ChunkType = "text"
	ChunkTypeUsage ChunkType = "usage"
	ChunkTypeError ChunkType = "error"
)

// Chunk is one unit of a streaming completion.
type Chunk interface {
	Type() ChunkType
}

// TextChunk carries a fragment of the provider's text response.
type TextChunk struct{ Content string }

// UsageChunk reports token consumption for the call that produced it.
type UsageChunk struct{ InputTokens, OutputTokens int }

// ErrorChunk signals a provider-side error mid-stream.
type ErrorChunk struct {
	Message   string
	Retryable bool
}

func (c *TextChunk) Type() ChunkType  { return ChunkTypeText }
func (c *UsageChunk) Type() ChunkType { return ChunkTypeUsage }
func (c *ErrorChunk) Type() ChunkType { return ChunkTypeError }

// Client is the interface every provider adapter implements, per spec
// §6's complete / complete_streaming / capabilities / validate contract.
type Client interface {
	Complete(ctx context.Context, input AgentInput) (AgentOutput, error)

	// CompleteStreaming is optional; an adapter with
	// Capabilities().SupportsStreaming == false may return
	// ErrStreamingUnsupported.
	CompleteStreaming(ctx context.Context, input AgentInput) (<-chan Chunk, error)

	Capabilities() Capabilities
	Validate(ctx context.Context) error

	Close() error
}

// Factory constructs a Client from adapter-specific configuration,
// keyed by provider name in the Registry.
type Factory func(ctx context.Context) (Client, error)
