// Package grpcclient implements provider.Client over gRPC, the way the
// teacher's pkg/agent/llm_grpc.go calls out to the Python LLM sidecar.
// Transport is TLS by default; setting Config.Insecure selects plaintext
// for a provider adapter running as a sidecar or on localhost.
//
// The teacher's wire contract is a protoc-generated package (llmv1) that
// is not part of this module's retrieval pack, and protoc is not run as
// part of building this repo. Rather than hand-author a fabricated
// generated-code package, this client speaks to the provider service
// with google.golang.org/protobuf's own pre-generated
// structpb.Struct message type as both request and reply, dispatched
// through grpc.ClientConn.Invoke/NewStream by fully-qualified method
// name instead of through a generated stub type. This still exercises
// the real grpc and protobuf wire codecs end to end; see DESIGN.md.
package grpcclient

import (
	"context"
	"fmt"
	"io"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tarsy-substrate/substrate/errs"
	"github.com/tarsy-substrate/substrate/provider"
)

const (
	serviceName    = "tarsy.substrate.provider.v1.ProviderService"
	completeMethod = "/" + serviceName + "/Complete"
	streamMethod   = "/" + serviceName + "/CompleteStreaming"
)

// Config configures a Client.
type Config struct {
	Target      string
	Insecure    bool
	DialTimeout time.Duration

	SupportsStreaming  bool
	SupportsMultimodal bool
	MaxContextTokens   int
	MaxOutputTokens    int
}

// Client implements provider.Client over a gRPC connection.
type Client struct {
	conn *grpc.ClientConn
	cfg  Config
}

var _ provider.Client = (*Client)(nil)

// New dials cfg.Target and returns a ready Client. Dialing with
// grpc.NewClient is lazy; New blocks (up to cfg.DialTimeout, if set)
// until the connection reaches Ready or Idle, the way the teacher treats
// a failed initial connection as a startup error rather than a deferred
// one.
func New(ctx context.Context, cfg Config) (*Client, error) {
	creds := transportCredentials(cfg.Insecure)
	conn, err := grpc.NewClient(cfg.Target, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, errs.New(errs.KindProviderError, "grpcclient.New", fmt.Errorf("dial %s: %w", cfg.Target, err))
	}

	if cfg.DialTimeout > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
		conn.Connect()
		for {
			state := conn.GetState()
			if state == connectivity.Ready || state == connectivity.Idle {
				break
			}
			if !conn.WaitForStateChange(waitCtx, state) {
				_ = conn.Close()
				return nil, errs.New(errs.KindTimeout, "grpcclient.New", fmt.Errorf("connect to %s: %w", cfg.Target, waitCtx.Err()))
			}
		}
	}

	return &Client{conn: conn, cfg: cfg}, nil
}

func transportCredentials(insecureTransport bool) credentials.TransportCredentials {
	if insecureTransport {
		return insecure.NewCredentials()
	}
	return credentials.NewTLS(nil)
}

// Complete implements provider.Client.
func (c *Client) Complete(ctx context.Context, input provider.AgentInput) (provider.AgentOutput, error) {
	req, err := structpb.NewStruct(map[string]any{
		"text":       input.Text,
		"parameters": input.Parameters,
	})
	if err != nil {
		return provider.AgentOutput{}, errs.New(errs.KindSerialization, "grpcclient.Complete", err)
	}

	reply := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, completeMethod, req, reply); err != nil {
		return provider.AgentOutput{}, errs.New(errs.KindProviderError, "grpcclient.Complete", err)
	}

	raw := reply.AsMap()
	text, _ := raw["text"].(string)
	return provider.AgentOutput{Text: text, Raw: raw}, nil
}

// CompleteStreaming implements provider.Client by opening a
// server-streaming RPC and translating each received structpb.Struct
// into a provider.Chunk by its "type" field.
func (c *Client) CompleteStreaming(ctx context.Context, input provider.AgentInput) (<-chan provider.Chunk, error) {
	if !c.cfg.SupportsStreaming {
		return nil, provider.ErrStreamingUnsupported
	}

	req, err := structpb.NewStruct(map[string]any{
		"text":       input.Text,
		"parameters": input.Parameters,
	})
	if err != nil {
		return nil, errs.New(errs.KindSerialization, "grpcclient.CompleteStreaming", err)
	}

	stream, err := c.conn.NewStream(ctx, &grpc.StreamDesc{ServerStreams: true}, streamMethod)
	if err != nil {
		return nil, errs.New(errs.KindProviderError, "grpcclient.CompleteStreaming", err)
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, errs.New(errs.KindProviderError, "grpcclient.CompleteStreaming", err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, errs.New(errs.KindProviderError, "grpcclient.CompleteStreaming", err)
	}

	ch := make(chan provider.Chunk, 32)
	go func() {
		defer close(ch)
		for {
			msg := &structpb.Struct{}
			err := stream.RecvMsg(msg)
			if err == io.EOF {
				return
			}
			if err != nil {
				select {
				case ch <- &provider.ErrorChunk{Message: err.Error()}:
				case <-ctx.Done():
				}
				return
			}
			if chunk := toChunk(msg.AsMap()); chunk != nil {
				select {
				case ch <- chunk:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

func toChunk(fields map[string]any) provider.Chunk {
	switch fields["type"] {
	case "text":
		content, _ := fields["content"].(string)
		return &provider.TextChunk{Content: content}
	case "usage":
		in, _ := fields["input_tokens"].(float64)
		out, _ := fields["output_tokens"].(float64)
		return &provider.UsageChunk{InputTokens: int(in), OutputTokens: int(out)}
	case "error":
		msg, _ := fields["message"].(string)
		retryable, _ := fields["retryable"].(bool)
		return &provider.ErrorChunk{Message: msg, Retryable: retryable}
	default:
		return nil
	}
}

// Capabilities implements provider.Client.
func (c *Client) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		SupportsStreaming:  c.cfg.SupportsStreaming,
		SupportsMultimodal: c.cfg.SupportsMultimodal,
		MaxContextTokens:   c.cfg.MaxContextTokens,
		MaxOutputTokens:    c.cfg.MaxOutputTokens,
	}
}

// Validate implements provider.Client by confirming the connection can
// reach a ready state, without invoking Complete.
func (c *Client) Validate(ctx context.Context) error {
	c.conn.Connect()
	for {
		state := c.conn.GetState()
		if state == connectivity.Ready || state == connectivity.Idle {
			return nil
		}
		if !c.conn.WaitForStateChange(ctx, state) {
			return errs.New(errs.KindTimeout, "grpcclient.Validate", ctx.Err())
		}
	}
}

// Close implements provider.Client.
func (c *Client) Close() error {
	return c.conn.Close()
}
