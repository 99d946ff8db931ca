// Package llm provides the gRPC-backed language-model client shared by
// the Evaluator (judge-model scoring calls) and the Optimizer (writer-model
// prompt rewriting calls). It knows nothing about G-Eval criteria or OPRO
// meta-prompts; it only sends a prompt to a named model and returns text.
package llm

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	llmpb "github.com/devctrl/orchestrator/proto/llmpb"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Config configures the gRPC connection and request defaults. Loaded
// from the environment the same way the teacher's pkg/llm does.
type Config struct {
	Endpoint       string
	DefaultModel   string
	Temperature    float64
	MaxTokens      int
	RequestTimeout time.Duration
}

// ConfigFromEnv mirrors the teacher's env-var-driven construction.
func ConfigFromEnv() Config {
	temp, _ := strconv.ParseFloat(getEnvOrDefault("LLM_TEMPERATURE", "0.2"), 64)
	maxTokens, _ := strconv.Atoi(getEnvOrDefault("LLM_MAX_TOKENS", "4096"))
	timeout, _ := time.ParseDuration(getEnvOrDefault("LLM_REQUEST_TIMEOUT", "120s"))

	return Config{
		Endpoint:       getEnvOrDefault("LLM_SERVICE_ENDPOINT", "localhost:50051"),
		DefaultModel:   getEnvOrDefault("LLM_DEFAULT_MODEL", "claude-sonnet"),
		Temperature:    temp,
		MaxTokens:      maxTokens,
		RequestTimeout: timeout,
	}
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Client wraps the generated LLMService stub with the request defaults
// and timeout discipline the rest of the core relies on.
type Client struct {
	cfg  Config
	conn *grpc.ClientConn
	rpc  llmpb.LLMServiceClient
}

// Dial opens the gRPC connection. Call Close when done.
func Dial(cfg Config) (*Client, error) {
	conn, err := grpc.NewClient(cfg.Endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial llm service %s: %w", cfg.Endpoint, err)
	}
	return &Client{cfg: cfg, conn: conn, rpc: llmpb.NewLLMServiceClient(conn)}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Response is the result of a single non-streaming generation call.
type Response struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
	Model            string
}

// Generate sends a single prompt and blocks for the full response. model
// defaults to cfg.DefaultModel when empty. timeout defaults to
// cfg.RequestTimeout when zero.
func (c *Client) Generate(ctx context.Context, model, prompt string, timeout time.Duration) (Response, error) {
	if model == "" {
		model = c.cfg.DefaultModel
	}
	if timeout == 0 {
		timeout = c.cfg.RequestTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.rpc.Generate(ctx, &llmpb.GenerateRequest{
		Model:          model,
		Prompt:         prompt,
		Temperature:    c.cfg.Temperature,
		MaxTokens:      int32(c.cfg.MaxTokens),
		TimeoutSeconds: timeout.Seconds(),
	})
	if err != nil {
		return Response{}, fmt.Errorf("generate(%s): %w", model, err)
	}

	return Response{
		Content:          resp.GetContent(),
		PromptTokens:     int(resp.GetPromptTokens()),
		CompletionTokens: int(resp.GetCompletionTokens()),
		CostUSD:          resp.GetCostUsd(),
		Model:            resp.GetModel(),
	}, nil
}

// StreamChunk is one element of a GenerateStream response.
type StreamChunk struct {
	Content string
	IsFinal bool
	Final   *Response
	Error   error
}

// GenerateStream streams incremental content on the returned channel,
// closing it when the stream ends (successfully or not). The channel
// always receives exactly one chunk with IsFinal=true (carrying the
// usage/cost summary) unless the call fails before the stream opens.
func (c *Client) GenerateStream(ctx context.Context, model, prompt string, timeout time.Duration) (<-chan StreamChunk, error) {
	if model == "" {
		model = c.cfg.DefaultModel
	}
	if timeout == 0 {
		timeout = c.cfg.RequestTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	stream, err := c.rpc.GenerateStream(ctx, &llmpb.GenerateRequest{
		Model:          model,
		Prompt:         prompt,
		Temperature:    c.cfg.Temperature,
		MaxTokens:      int32(c.cfg.MaxTokens),
		TimeoutSeconds: timeout.Seconds(),
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("generate_stream(%s): %w", model, err)
	}

	out := make(chan StreamChunk)
	go func() {
		defer cancel()
		defer close(out)
		for {
			chunk, err := stream.Recv()
			if err != nil {
				out <- StreamChunk{Error: err, IsFinal: true}
				return
			}
			if chunk.GetError() != "" {
				out <- StreamChunk{Error: fmt.Errorf("%s", chunk.GetError()), IsFinal: true}
				return
			}
			if chunk.GetIsFinal() {
				final := chunk.GetFinal()
				out <- StreamChunk{
					IsFinal: true,
					Final: &Response{
						Content:          final.GetContent(),
						PromptTokens:     int(final.GetPromptTokens()),
						CompletionTokens: int(final.GetCompletionTokens()),
						CostUSD:          final.GetCostUsd(),
						Model:            final.GetModel(),
					},
				}
				return
			}
			out <- StreamChunk{Content: chunk.GetContent()}
		}
	}()

	return out, nil
}
