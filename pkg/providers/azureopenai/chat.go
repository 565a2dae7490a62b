package azureopenai

import (
	"context"

	"github.com/sashabaranov/go-openai"

	"github.com/ragmw/midtier/pkg/errs"
	"github.com/ragmw/midtier/pkg/fn"
	"github.com/ragmw/midtier/pkg/resilience"
)

// ChatMessage is one turn of a chat completion request.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatRequest is the C6 chat provider request. MaxTokens and Temperature are
// optional; nil leaves them unset on the wire.
type ChatRequest struct {
	Messages    []ChatMessage
	MaxTokens   *int
	Temperature *float32
	User        string
}

// ChatResponse is the provider's completion.
type ChatResponse struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// ChatClient is the C6 chat provider client.
type ChatClient struct {
	cli     *openai.Client
	cfg     Config
	rcfg    resilience.Config
	breaker *resilience.Breaker
}

// NewChatClient builds a chat client for cfg.ChatDeployment. Every call is
// gated by a circuit breaker at the envelope's default failure
// threshold/recovery timeout, same as EmbeddingClient.
func NewChatClient(cfg Config) *ChatClient {
	cfg = cfg.withDefaults()
	rcfg := resilience.DefaultConfig
	rcfg.MaxRetries = cfg.MaxRetries
	rcfg.OperationTimeoutS = cfg.TimeoutS
	rcfg.Metrics = cfg.Metrics
	rcfg.MetricsLabel = "azure_chat"
	breaker := resilience.NewBreaker(resilience.DefaultBreakerOpts)
	breaker.SetMetrics(cfg.Metrics, "azure_chat")
	return &ChatClient{
		cli:     openai.NewClientWithConfig(clientConfig(cfg)),
		cfg:     cfg,
		rcfg:    rcfg,
		breaker: breaker,
	}
}

// Complete runs a chat completion. An empty choices array is treated as an
// ExternalAPI failure rather than EmbeddingGeneration: the request succeeded
// at the transport level but the provider had nothing to return.
func (c *ChatClient) Complete(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if len(req.Messages) == 0 {
		return ChatResponse{}, errs.Validationf("chat request must have at least one message")
	}

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	wireReq := openai.ChatCompletionRequest{
		Model:    c.cfg.ChatDeployment,
		Messages: messages,
		User:     req.User,
	}
	if req.MaxTokens != nil {
		wireReq.MaxTokens = *req.MaxTokens
	}
	if req.Temperature != nil {
		wireReq.Temperature = *req.Temperature
	}

	result := resilience.CallResult(c.breaker, ctx, func(ctx context.Context) fn.Result[openai.ChatCompletionResponse] {
		return resilience.RetryWithBackoff(ctx, c.rcfg, func(ctx context.Context) fn.Result[openai.ChatCompletionResponse] {
			resp, err := c.cli.CreateChatCompletion(ctx, wireReq)
			if err != nil {
				return fn.Err[openai.ChatCompletionResponse](classifyErr("chat completion", err))
			}
			if len(resp.Choices) == 0 {
				return fn.Err[openai.ChatCompletionResponse](errs.ExternalAPIf("chat provider returned no choices"))
			}
			return fn.Ok(resp)
		})
	})

	resp, err := result.Unwrap()
	if err != nil {
		return ChatResponse{}, err
	}
	return ChatResponse{
		Content:          resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}
