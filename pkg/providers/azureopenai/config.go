// Package azureopenai implements the embedding (C5) and chat (C6) provider
// clients against an Azure OpenAI deployment, on top of go-openai's Azure
// configuration mode.
package azureopenai

import (
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/ragmw/midtier/pkg/metrics"
)

// Config describes one Azure OpenAI deployment. Endpoint, APIKey, and
// APIVersion are shared by the embedding and chat surfaces; each surface
// addresses its own deployment name.
type Config struct {
	Endpoint        string
	APIKey          string
	APIVersion      string
	ChatDeployment  string
	EmbedDeployment string
	MaxRetries      int
	TimeoutS        int

	// HTTPClient, when set, is used instead of a client built from
	// TimeoutS. The composition root passes the shared pool's client here
	// so both deployments draw from the same bounded connection pool.
	HTTPClient *http.Client

	// Metrics, if set, receives this client's circuit breaker state gauge.
	// Nil is safe: observations are simply skipped.
	Metrics *metrics.Metrics
}

const (
	DefaultMaxRetries = 3
	DefaultTimeoutS   = 60
)

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.TimeoutS <= 0 {
		c.TimeoutS = DefaultTimeoutS
	}
	return c
}

// clientConfig builds the go-openai client configuration for this Azure
// deployment. The model mapper is the identity function: go-openai's Azure
// default mapper strips dots from the model name, which would mangle
// deployment names that contain them.
func clientConfig(cfg Config) openai.ClientConfig {
	oc := openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
	oc.APIVersion = cfg.APIVersion
	oc.AzureModelMapperFunc = func(model string) string { return model }
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	} else {
		oc.HTTPClient = &http.Client{Timeout: time.Duration(cfg.TimeoutS) * time.Second}
	}
	return oc
}
