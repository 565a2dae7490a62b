// Package config loads and validates the application's environment-based
// configuration: the HTTP server, the Azure OpenAI chat/embedding
// deployments, and the Qdrant vector store.
package config

import (
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/ragmw/midtier/pkg/errs"
)

// Config is the top-level application configuration.
type Config struct {
	Server      ServerConfig
	AzureOpenAI AzureOpenAIConfig
	Qdrant      QdrantConfig
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string
	Port            uint16
	MaxRequestBytes int
	TimeoutS        int
}

// AzureOpenAIConfig configures both the chat and embedding deployments on a
// single Azure OpenAI resource.
type AzureOpenAIConfig struct {
	Endpoint        string
	APIKey          string
	APIVersion      string
	ChatDeployment  string
	EmbedDeployment string
	MaxRetries      int
	TimeoutS        int
}

// QdrantConfig configures the vector store.
type QdrantConfig struct {
	URL            string
	APIKey         string
	CollectionName string
	VectorSize     uint64
	TimeoutS       int
	MaxRetries     int
}

// Load reads the full configuration from the environment and validates it.
func Load() (Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return Config{}, err
	}
	azure, err := loadAzureOpenAIConfig()
	if err != nil {
		return Config{}, err
	}
	qdrant, err := loadQdrantConfig()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{Server: server, AzureOpenAI: azure, Qdrant: qdrant}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every section, wrapping the first failure with the
// section it came from.
func (c Config) Validate() error {
	if err := c.Server.validate(); err != nil {
		return errs.Wrap(errs.Configuration, "server config", err)
	}
	if err := c.AzureOpenAI.validate(); err != nil {
		return errs.Wrap(errs.Configuration, "azure openai config", err)
	}
	if err := c.Qdrant.validate(); err != nil {
		return errs.Wrap(errs.Configuration, "qdrant config", err)
	}
	return nil
}

func loadServerConfig() (ServerConfig, error) {
	port, err := envOrInt("SERVER_PORT", 8080)
	if err != nil {
		return ServerConfig{}, err
	}
	maxReq, err := envOrInt("SERVER_MAX_REQUEST_SIZE", 10*1024*1024)
	if err != nil {
		return ServerConfig{}, err
	}
	timeout, err := envOrInt("SERVER_TIMEOUT_SECONDS", 30)
	if err != nil {
		return ServerConfig{}, err
	}
	return ServerConfig{
		Host:            envOr("SERVER_HOST", "127.0.0.1"),
		Port:            uint16(port),
		MaxRequestBytes: maxReq,
		TimeoutS:        timeout,
	}, nil
}

func (s ServerConfig) validate() error {
	if net.ParseIP(s.Host) == nil {
		return errs.Configurationf("invalid server host %q: not an IP address", s.Host)
	}
	if s.Port == 0 {
		return errs.Configurationf("server port cannot be 0")
	}
	if s.MaxRequestBytes < 1024 {
		return errs.Configurationf("SERVER_MAX_REQUEST_SIZE must be at least 1024 bytes")
	}
	if s.MaxRequestBytes > 104_857_600 {
		return errs.Configurationf("SERVER_MAX_REQUEST_SIZE cannot exceed 100MB")
	}
	if s.TimeoutS <= 0 {
		return errs.Configurationf("SERVER_TIMEOUT_SECONDS must be greater than 0")
	}
	if s.TimeoutS > 300 {
		return errs.Configurationf("SERVER_TIMEOUT_SECONDS cannot exceed 300 seconds")
	}
	return nil
}

func loadAzureOpenAIConfig() (AzureOpenAIConfig, error) {
	maxRetries, err := envOrInt("AZURE_OPENAI_MAX_RETRIES", 3)
	if err != nil {
		return AzureOpenAIConfig{}, err
	}
	timeout, err := envOrInt("AZURE_OPENAI_TIMEOUT_SECONDS", 60)
	if err != nil {
		return AzureOpenAIConfig{}, err
	}
	return AzureOpenAIConfig{
		Endpoint:        envOr("AZURE_OPENAI_ENDPOINT", ""),
		APIKey:          envOr("AZURE_OPENAI_API_KEY", ""),
		APIVersion:      envOr("AZURE_OPENAI_API_VERSION", "2024-02-01"),
		ChatDeployment:  envOr("AZURE_OPENAI_CHAT_DEPLOYMENT", ""),
		EmbedDeployment: envOr("AZURE_OPENAI_EMBED_DEPLOYMENT", ""),
		MaxRetries:      maxRetries,
		TimeoutS:        timeout,
	}, nil
}

func (a AzureOpenAIConfig) validate() error {
	if a.Endpoint == "" {
		return errs.Configurationf("AZURE_OPENAI_ENDPOINT is required")
	}
	if !strings.HasPrefix(a.Endpoint, "https://") {
		return errs.Configurationf("azure openai endpoint must use HTTPS")
	}
	if strings.TrimSpace(a.APIKey) == "" {
		return errs.Configurationf("azure openai api key cannot be empty")
	}
	if len(a.APIKey) < 32 {
		return errs.Configurationf("azure openai api key appears to be invalid (too short)")
	}
	if !validAPIVersion(a.APIVersion) {
		return errs.Configurationf("invalid api version format %q, expected YYYY-MM-DD or YYYY-MM-DD-preview", a.APIVersion)
	}
	if strings.TrimSpace(a.ChatDeployment) == "" {
		return errs.Configurationf("azure openai chat deployment name cannot be empty")
	}
	if strings.TrimSpace(a.EmbedDeployment) == "" {
		return errs.Configurationf("azure openai embedding deployment name cannot be empty")
	}
	if a.MaxRetries > 10 {
		return errs.Configurationf("AZURE_OPENAI_MAX_RETRIES cannot exceed 10")
	}
	if a.TimeoutS <= 0 {
		return errs.Configurationf("AZURE_OPENAI_TIMEOUT_SECONDS must be greater than 0")
	}
	if a.TimeoutS > 300 {
		return errs.Configurationf("AZURE_OPENAI_TIMEOUT_SECONDS cannot exceed 300 seconds")
	}
	return nil
}

// validAPIVersion accepts YYYY-MM-DD or YYYY-MM-DD-preview (or any
// -suffix), matching Azure's dated-preview versioning scheme.
func validAPIVersion(v string) bool {
	parts := strings.Split(v, "-")
	if len(parts) < 3 {
		return false
	}
	return isDigits(parts[0], 4) && isDigits(parts[1], 2) && isDigits(parts[2], 2)
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	_, err := strconv.Atoi(s)
	return err == nil
}

func loadQdrantConfig() (QdrantConfig, error) {
	vectorSize, err := envOrInt("QDRANT_VECTOR_SIZE", 3072)
	if err != nil {
		return QdrantConfig{}, err
	}
	timeout, err := envOrInt("QDRANT_TIMEOUT_SECONDS", 30)
	if err != nil {
		return QdrantConfig{}, err
	}
	maxRetries, err := envOrInt("QDRANT_MAX_RETRIES", 3)
	if err != nil {
		return QdrantConfig{}, err
	}
	return QdrantConfig{
		URL:            envOr("QDRANT_URL", "http://localhost:6333"),
		APIKey:         envOr("QDRANT_API_KEY", ""),
		CollectionName: envOr("QDRANT_COLLECTION_NAME", "document_chunks"),
		VectorSize:     uint64(vectorSize),
		TimeoutS:       timeout,
		MaxRetries:     maxRetries,
	}, nil
}

func (q QdrantConfig) validate() error {
	if strings.TrimSpace(q.URL) == "" {
		return errs.Configurationf("qdrant url cannot be empty")
	}
	if strings.TrimSpace(q.CollectionName) == "" {
		return errs.Configurationf("qdrant collection name cannot be empty")
	}
	for _, r := range q.CollectionName {
		if !isAlnumUnderscoreHyphen(r) {
			return errs.Configurationf("qdrant collection name can only contain alphanumeric characters, underscores, and hyphens")
		}
	}
	if q.VectorSize == 0 {
		return errs.Configurationf("QDRANT_VECTOR_SIZE must be greater than 0")
	}
	if q.VectorSize > 65536 {
		return errs.Configurationf("QDRANT_VECTOR_SIZE cannot exceed 65536")
	}
	if q.TimeoutS <= 0 {
		return errs.Configurationf("QDRANT_TIMEOUT_SECONDS must be greater than 0")
	}
	if q.TimeoutS > 300 {
		return errs.Configurationf("QDRANT_TIMEOUT_SECONDS cannot exceed 300 seconds")
	}
	if q.MaxRetries > 10 {
		return errs.Configurationf("QDRANT_MAX_RETRIES cannot exceed 10")
	}
	return nil
}

func isAlnumUnderscoreHyphen(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-'
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errs.Configurationf("invalid %s: %v", key, err)
	}
	return n, nil
}
