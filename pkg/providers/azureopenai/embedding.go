package azureopenai

import (
	"context"
	"sort"

	"github.com/sashabaranov/go-openai"

	"github.com/ragmw/midtier/pkg/errs"
	"github.com/ragmw/midtier/pkg/fn"
	"github.com/ragmw/midtier/pkg/resilience"
)

// EmbeddingClient is the C5 embedding provider client.
type EmbeddingClient struct {
	cli     *openai.Client
	cfg     Config
	rcfg    resilience.Config
	breaker *resilience.Breaker
}

// NewEmbeddingClient builds an embedding client for cfg.EmbedDeployment. Its
// own retry loop is shaped exactly like the resilience envelope's defaults,
// scaled to cfg.MaxRetries; callers that wrap this client in the envelope
// again are retrying a retry, which is intentional belt-and-braces for the
// outermost caller. Every call is additionally gated by a circuit breaker at
// the envelope's default failure threshold/recovery timeout.
func NewEmbeddingClient(cfg Config) *EmbeddingClient {
	cfg = cfg.withDefaults()
	rcfg := resilience.DefaultConfig
	rcfg.MaxRetries = cfg.MaxRetries
	rcfg.OperationTimeoutS = cfg.TimeoutS
	rcfg.Metrics = cfg.Metrics
	rcfg.MetricsLabel = "azure_embedding"
	breaker := resilience.NewBreaker(resilience.DefaultBreakerOpts)
	breaker.SetMetrics(cfg.Metrics, "azure_embedding")
	return &EmbeddingClient{
		cli:     openai.NewClientWithConfig(clientConfig(cfg)),
		cfg:     cfg,
		rcfg:    rcfg,
		breaker: breaker,
	}
}

// Embed returns the embedding vector for a single input.
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds every input in one request. The response carries an
// index per embedding; inputs are restored to request order by that index,
// and the result must contain exactly len(texts) embeddings or the batch is
// rejected as an EmbeddingGeneration failure.
func (c *EmbeddingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errs.Validationf("embedding batch must not be empty")
	}

	result := resilience.CallResult(c.breaker, ctx, func(ctx context.Context) fn.Result[[]openai.Embedding] {
		return resilience.RetryWithBackoff(ctx, c.rcfg, func(ctx context.Context) fn.Result[[]openai.Embedding] {
			resp, err := c.cli.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Input: texts,
				Model: openai.EmbeddingModel(c.cfg.EmbedDeployment),
			})
			if err != nil {
				return fn.Err[[]openai.Embedding](classifyErr("embed", err))
			}
			if len(resp.Data) == 0 {
				return fn.Err[[]openai.Embedding](errs.EmbeddingGenerationf("embedding provider returned no data"))
			}
			return fn.Ok(resp.Data)
		})
	})

	data, err := result.Unwrap()
	if err != nil {
		return nil, err
	}
	if len(data) != len(texts) {
		return nil, errs.EmbeddingGenerationf("embedding batch returned %d embeddings for %d inputs", len(data), len(texts))
	}

	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	out := make([][]float32, len(data))
	for i, e := range data {
		if e.Index != i {
			return nil, errs.EmbeddingGenerationf("embedding batch indices are not a contiguous permutation of the input")
		}
		out[i] = e.Embedding
	}
	return out, nil
}

// HealthCheck embeds a short fixed probe string and reports whether the
// provider is reachable. It never propagates an error.
func (c *EmbeddingClient) HealthCheck(ctx context.Context) bool {
	_, err := c.cli.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: "ping",
		Model: openai.EmbeddingModel(c.cfg.EmbedDeployment),
	})
	return err == nil
}
