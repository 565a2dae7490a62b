// Package rag implements the RAG service (C12): it embeds a question,
// retrieves supporting chunks, builds a grounded prompt, calls the chat
// provider, and scores the resulting answer's confidence.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ragmw/midtier/pkg/domain"
	"github.com/ragmw/midtier/pkg/errs"
	"github.com/ragmw/midtier/pkg/providers/azureopenai"
)

// MaxQuestionLength is the longest question the service accepts.
const MaxQuestionLength = 1000

// lowConfidenceAnswer replaces the generated answer when its confidence
// falls below the configured threshold.
const lowConfidenceAnswer = "I don't have enough reliable information to answer this question confidently. Please try rephrasing your question or provide more context."

const systemPrompt = `You are a helpful AI assistant that answers questions based on provided context information.

Instructions:
1. Use ONLY the information provided in the context to answer questions
2. If the context doesn't contain enough information to answer the question, say so clearly
3. Be concise but comprehensive in your answers
4. Cite specific sources when possible
5. If you're uncertain about something, express that uncertainty
6. Do not make up information that isn't in the provided context
7. Structure your answer clearly with proper formatting when appropriate

Remember: Your knowledge is limited to the provided context. Do not use external knowledge beyond what's given.`

// Config configures one answer_question call.
type Config struct {
	MaxChunks              int
	SimilarityThreshold    float64
	MaxResponseTokens      int
	Temperature            float32
	MaxSnippetLength       int
	IncludeLowConfidence   bool
	MinConfidenceThreshold float64
}

// DefaultConfig mirrors the service's documented defaults.
var DefaultConfig = Config{
	MaxChunks:              5,
	SimilarityThreshold:    0.7,
	MaxResponseTokens:      500,
	Temperature:            0.3,
	MaxSnippetLength:       200,
	IncludeLowConfidence:   false,
	MinConfidenceThreshold: 0.6,
}

// Embedder is the embedding service collaborator (C11).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher is the vector search service collaborator (C10).
type Searcher interface {
	SearchSimilarWithThreshold(ctx context.Context, vec []float32, limit int, threshold float64) ([]domain.SearchResult, error)
}

// Chatter is the chat provider collaborator (C6).
type Chatter interface {
	Complete(ctx context.Context, req azureopenai.ChatRequest) (azureopenai.ChatResponse, error)
}

// Deps holds the RAG service's external collaborators.
type Deps struct {
	Embedder Embedder
	Searcher Searcher
	Chat     Chatter
	Logger   *slog.Logger
}

// Service is the RAG service (C12).
type Service struct {
	deps          Deps
	log           *slog.Logger
	defaultConfig Config
}

// New constructs the RAG service. A zero defaultConfig uses DefaultConfig.
func New(deps Deps, defaultConfig Config) *Service {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	if defaultConfig == (Config{}) {
		defaultConfig = DefaultConfig
	}
	return &Service{deps: deps, log: log, defaultConfig: defaultConfig}
}

// AnswerQuestion answers question using the service's default configuration.
func (s *Service) AnswerQuestion(ctx context.Context, question string) (domain.RAGResponse, error) {
	return s.AnswerQuestionWithConfig(ctx, question, s.defaultConfig)
}

// AnswerQuestionWithConfig runs the full pipeline: validate, embed, retrieve,
// construct a grounded prompt, generate an answer, score its confidence, and
// gate the answer on the confidence threshold.
func (s *Service) AnswerQuestionWithConfig(ctx context.Context, question string, cfg Config) (domain.RAGResponse, error) {
	start := time.Now()

	if err := validateQuestion(question); err != nil {
		return domain.RAGResponse{}, err
	}
	if err := validateConfig(cfg); err != nil {
		return domain.RAGResponse{}, err
	}

	embedding, err := s.deps.Embedder.Embed(ctx, question)
	if err != nil {
		return domain.RAGResponse{}, errs.Wrap(errs.Internal, "generate question embedding", err)
	}

	results, err := s.deps.Searcher.SearchSimilarWithThreshold(ctx, embedding, cfg.MaxChunks, cfg.SimilarityThreshold)
	if err != nil {
		return domain.RAGResponse{}, errs.Wrap(errs.Internal, "search for similar chunks", err)
	}
	s.log.Debug("rag.retrieved", "chunks", len(results))

	promptContext := constructContext(results, cfg)
	userPrompt := buildUserPrompt(promptContext, question)

	maxTokens := cfg.MaxResponseTokens
	temperature := cfg.Temperature
	chatResp, err := s.deps.Chat.Complete(ctx, azureopenai.ChatRequest{
		Messages: []azureopenai.ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		return domain.RAGResponse{}, errs.Wrap(errs.Internal, "generate answer", err)
	}

	sources := buildSourceReferences(results, cfg)
	confidence := estimateConfidence(results, chatResp.Content)

	answer := chatResp.Content
	if !cfg.IncludeLowConfidence && confidence < cfg.MinConfidenceThreshold {
		s.log.Warn("rag.low_confidence", "confidence", confidence, "threshold", cfg.MinConfidenceThreshold)
		answer = lowConfidenceAnswer
	}

	return domain.RAGResponse{
		Answer:         answer,
		Sources:        sources,
		Confidence:     confidence,
		Query:          question,
		ResponseTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

func validateQuestion(question string) error {
	if strings.TrimSpace(question) == "" {
		return errs.Validationf("question must not be empty")
	}
	if len(question) > MaxQuestionLength {
		return errs.Validationf("question too long: %d characters (max %d)", len(question), MaxQuestionLength)
	}
	return nil
}

func validateConfig(cfg Config) error {
	if cfg.MaxChunks <= 0 {
		return errs.Validationf("max_chunks must be greater than 0")
	}
	if cfg.MaxChunks > 20 {
		return errs.Validationf("max_chunks cannot exceed 20")
	}
	if cfg.SimilarityThreshold < 0 || cfg.SimilarityThreshold > 1 {
		return errs.Validationf("similarity_threshold must be between 0 and 1")
	}
	if cfg.Temperature < 0 || cfg.Temperature > 1 {
		return errs.Validationf("temperature must be between 0 and 1")
	}
	if cfg.MinConfidenceThreshold < 0 || cfg.MinConfidenceThreshold > 1 {
		return errs.Validationf("min_confidence_threshold must be between 0 and 1")
	}
	if cfg.MaxResponseTokens <= 0 || cfg.MaxResponseTokens > 4000 {
		return errs.Validationf("max_response_tokens must be between 1 and 4000")
	}
	return nil
}

// constructContext builds the labeled context block fed to the chat
// provider. Long chunk content is truncated at 2x max snippet length,
// preferring the last sentence boundary.
func constructContext(results []domain.SearchResult, cfg Config) string {
	if len(results) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Based on the following information:\n\n")

	for i, r := range results {
		c := r.Chunk
		b.WriteString(fmt.Sprintf("Source %d (from %s):\n", i+1, c.Metadata.SourceFile))

		if len(c.Metadata.Headers) > 0 {
			b.WriteString("Section: " + strings.Join(c.Metadata.Headers, " > ") + "\n")
		}

		limit := cfg.MaxSnippetLength * 2
		content := c.Content
		if len(content) > limit {
			truncated := content[:limit]
			if idx := strings.LastIndex(truncated, "."); idx >= 0 {
				content = truncated[:idx+1]
			} else {
				content = truncated + "..."
			}
		}

		b.WriteString(content)
		b.WriteString("\n\n")
	}

	return b.String()
}

// buildUserPrompt appends the question to the constructed context, or notes
// the absence of context when none was retrieved.
func buildUserPrompt(context, question string) string {
	if strings.TrimSpace(context) == "" {
		return fmt.Sprintf("Question: %s\n\nI don't have any relevant context information to answer this question.", question)
	}
	return context + "\nQuestion: " + question
}

// buildSourceReferences projects each retrieved chunk into a response-facing
// reference, truncating its content into a short snippet at the last space.
func buildSourceReferences(results []domain.SearchResult, cfg Config) []domain.SourceReference {
	out := make([]domain.SourceReference, len(results))
	for i, r := range results {
		c := r.Chunk
		snippet := c.Content
		if len(snippet) > cfg.MaxSnippetLength {
			truncated := snippet[:cfg.MaxSnippetLength]
			if idx := strings.LastIndex(truncated, " "); idx >= 0 {
				snippet = truncated[:idx] + "..."
			} else {
				snippet = truncated + "..."
			}
		}
		out[i] = domain.SourceReference{
			DocumentID:     c.DocumentID,
			ChunkID:        c.ID,
			RelevanceScore: r.RelevanceScore,
			Snippet:        snippet,
			SourceFile:     c.Metadata.SourceFile,
			ChunkIndex:     c.Metadata.ChunkIndex,
			Headers:        c.Metadata.Headers,
		}
	}
	return out
}

// estimateConfidence combines the top relevance score with source count,
// answer length, and uncertainty-language heuristics into a [0,1] score.
func estimateConfidence(results []domain.SearchResult, answer string) float64 {
	if len(results) == 0 {
		return 0
	}

	var maxSimilarity float32
	for _, r := range results {
		if r.RelevanceScore > maxSimilarity {
			maxSimilarity = r.RelevanceScore
		}
	}

	var sourceFactor float64
	switch n := len(results); {
	case n == 1:
		sourceFactor = 0.8
	case n <= 3:
		sourceFactor = 1.0
	default:
		sourceFactor = 0.95
	}

	var lengthFactor float64
	switch {
	case len(answer) < 50:
		lengthFactor = 0.7
	case len(answer) > 1000:
		lengthFactor = 0.9
	default:
		lengthFactor = 1.0
	}

	lower := strings.ToLower(answer)
	var uncertaintyFactor float64
	switch {
	case strings.Contains(lower, "i don't know"),
		strings.Contains(lower, "i'm not sure"),
		strings.Contains(lower, "unclear"),
		strings.Contains(lower, "cannot determine"):
		uncertaintyFactor = 0.3
	case strings.Contains(lower, "might"),
		strings.Contains(lower, "possibly"),
		strings.Contains(lower, "perhaps"):
		uncertaintyFactor = 0.7
	default:
		uncertaintyFactor = 1.0
	}

	confidence := float64(maxSimilarity) * sourceFactor * lengthFactor * uncertaintyFactor
	return clamp(confidence, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
