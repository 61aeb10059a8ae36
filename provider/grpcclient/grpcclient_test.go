package grpcclient

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tarsy-substrate/substrate/provider"
)

const bufSize = 1 << 16

func completeHandler(_ any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req := &structpb.Struct{}
	if err := dec(req); err != nil {
		return nil, err
	}
	text := req.AsMap()["text"].(string)
	return structpb.NewStruct(map[string]any{"text": "echo:" + text})
}

func streamHandler(_ any, stream grpc.ServerStream) error {
	req := &structpb.Struct{}
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	chunk1, _ := structpb.NewStruct(map[string]any{"type": "text", "content": "hi"})
	chunk2, _ := structpb.NewStruct(map[string]any{"type": "usage", "input_tokens": 3.0, "output_tokens": 5.0})
	if err := stream.SendMsg(chunk1); err != nil {
		return err
	}
	return stream.SendMsg(chunk2)
}

var testServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Complete", Handler: completeHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "CompleteStreaming", Handler: streamHandler, ServerStreams: true},
	},
}

func startTestServer(t *testing.T) *bufconn.Listener {
	t.Helper()
	lis := bufconn.Listen(bufSize)
	srv := grpc.NewServer()
	srv.RegisterService(&testServiceDesc, struct{}{})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return lis
}

func dialTestClient(t *testing.T, lis *bufconn.Listener, cfg Config) *Client {
	t.Helper()
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &Client{conn: conn, cfg: cfg}
}

func TestClient_CompleteRoundTrips(t *testing.T) {
	lis := startTestServer(t)
	client := dialTestClient(t, lis, Config{})

	out, err := client.Complete(context.Background(), provider.AgentInput{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "echo:hello", out.Text)
}

func TestClient_CompleteStreamingYieldsTextThenUsage(t *testing.T) {
	lis := startTestServer(t)
	client := dialTestClient(t, lis, Config{SupportsStreaming: true})

	ch, err := client.CompleteStreaming(context.Background(), provider.AgentInput{Text: "hello"})
	require.NoError(t, err)

	var chunks []provider.Chunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	require.Len(t, chunks, 2)
	text, ok := chunks[0].(*provider.TextChunk)
	require.True(t, ok)
	assert.Equal(t, "hi", text.Content)
	usage, ok := chunks[1].(*provider.UsageChunk)
	require.True(t, ok)
	assert.Equal(t, 3, usage.InputTokens)
	assert.Equal(t, 5, usage.OutputTokens)
}

func TestClient_CompleteStreamingRejectedWhenUnsupported(t *testing.T) {
	lis := startTestServer(t)
	client := dialTestClient(t, lis, Config{SupportsStreaming: false})

	_, err := client.CompleteStreaming(context.Background(), provider.AgentInput{Text: "hello"})
	assert.ErrorIs(t, err, provider.ErrStreamingUnsupported)
}

func TestClient_CapabilitiesReflectsConfig(t *testing.T) {
	lis := startTestServer(t)
	client := dialTestClient(t, lis, Config{SupportsStreaming: true, MaxContextTokens: 128000})

	caps := client.Capabilities()
	assert.True(t, caps.SupportsStreaming)
	assert.Equal(t, 128000, caps.MaxContextTokens)
}

func TestClient_ValidateSucceedsOnReadyConnection(t *testing.T) {
	lis := startTestServer(t)
	client := dialTestClient(t, lis, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.Validate(ctx))
}
