package embed

import "time"

const (
	// DefaultOllamaHost is the default Ollama API endpoint.
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is the embedding model used when the configured
	// model does not name one from the Ollama registry.
	DefaultOllamaModel = "nomic-embed-text"

	// connectionPoolSize bounds idle HTTP connections per provider.
	connectionPoolSize = 4
)

// OllamaConfig configures the Ollama provider.
type OllamaConfig struct {
	// Host is the Ollama API endpoint.
	Host string

	// Model is the embedding model to use.
	Model string

	// Dimensions overrides dimension auto-detection when non-zero.
	Dimensions int

	// BatchSize is the number of texts per embed request.
	BatchSize int

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// MaxRetries bounds attempts per request on transport failures.
	MaxRetries int
}

// ollamaEmbedRequest is the /api/embed request body.
type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"` // string, or []string for a batch
}

// ollamaEmbedResponse is the /api/embed response body.
type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

// ollamaTagsResponse is the /api/tags response body.
type ollamaTagsResponse struct {
	Models []ollamaModelInfo `json:"models"`
}

// ollamaModelInfo describes one installed model.
type ollamaModelInfo struct {
	Name string `json:"name"`
}
