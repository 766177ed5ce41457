package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	synerrors "github.com/casheiro/synapstor-go/internal/errors"
)

const (
	// DefaultOpenAIBaseURL is the OpenAI API endpoint. Jina-style services
	// expose the same /v1/embeddings surface under their own base URL.
	DefaultOpenAIBaseURL = "https://api.openai.com"

	// DefaultOpenAIModel is the embedding model used when the configured
	// model does not name an OpenAI one.
	DefaultOpenAIModel = "text-embedding-3-small"
)

// openaiModelDimensions maps known models to their dimension, sparing a
// paid probe request for the common cases.
var openaiModelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIConfig configures the OpenAI-compatible provider.
type OpenAIConfig struct {
	// BaseURL is the service endpoint; /v1/embeddings is appended.
	BaseURL string

	// APIKey authenticates requests via bearer token. Required.
	APIKey string

	// Model is the embedding model to use.
	Model string

	// Dimensions overrides dimension detection when non-zero.
	Dimensions int

	// BatchSize is the number of texts per embed request.
	BatchSize int

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// MaxRetries bounds attempts per request on transport failures.
	MaxRetries int
}

// openaiEmbedRequest is the /v1/embeddings request body.
type openaiEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// openaiEmbedResponse is the /v1/embeddings response body.
type openaiEmbedResponse struct {
	Data  []openaiEmbeddingData `json:"data"`
	Model string                `json:"model"`
}

type openaiEmbeddingData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// OpenAIProvider generates embeddings through an OpenAI-compatible HTTP
// API.
type OpenAIProvider struct {
	client    *http.Client
	transport *http.Transport
	config    OpenAIConfig
	dims      int

	mu     sync.RWMutex
	closed bool
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider builds the provider. The dimension comes from the
// config, the known-model table, or a probe request, in that order.
func NewOpenAIProvider(ctx context.Context, cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, synerrors.New(synerrors.ErrCodeMissingParameter,
			"openai api key is required", nil).
			WithSuggestion("set embeddings.openai_api_key or the SYNAPSTOR_OPENAI_API_KEY environment variable")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	transport := &http.Transport{
		MaxIdleConns:        connectionPoolSize,
		MaxIdleConnsPerHost: connectionPoolSize,
		IdleConnTimeout:     30 * time.Second,
	}

	p := &OpenAIProvider{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		dims:      cfg.Dimensions,
	}

	if p.dims == 0 {
		p.dims = openaiModelDimensions[cfg.Model]
	}
	if p.dims == 0 {
		setupCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()

		vecs, err := p.embed(setupCtx, []string{"dimension probe"})
		if err != nil {
			transport.CloseIdleConnections()
			return nil, err
		}
		p.dims = len(vecs[0])
	}

	return p, nil
}

// EmbedBatch embeds texts in request-sized sub-batches.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := p.ensureOpen(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	pending := make([]int, 0, len(texts))
	for i, text := range texts {
		// The API rejects blank input, so those become zero vectors here.
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, p.dims)
			continue
		}
		pending = append(pending, i)
	}

	for start := 0; start < len(pending); start += p.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := start + p.config.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		batchTexts := make([]string, len(batch))
		for i, idx := range batch {
			batchTexts[i] = texts[idx]
		}

		vecs, err := p.embedWithRetry(ctx, batchTexts)
		if err != nil {
			return nil, err
		}
		for i, vec := range vecs {
			results[batch[i]] = vec
		}
	}

	return results, nil
}

// EmbedQuery embeds a single search query.
func (p *OpenAIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := p.ensureOpen(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return make([]float32, p.dims), nil
	}

	vecs, err := p.embedWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (p *OpenAIProvider) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	retryCfg := DefaultRetryConfig()
	retryCfg.MaxAttempts = p.config.MaxRetries

	var vecs [][]float32
	err := retryTransport(ctx, retryCfg, func(ctx context.Context) error {
		reqCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()

		var embedErr error
		vecs, embedErr = p.embed(reqCtx, texts)
		return embedErr
	})
	if err != nil {
		return nil, err
	}
	return vecs, nil
}

// embed performs one /v1/embeddings request. Results are placed by the
// response index field, which the API may return out of order.
func (p *OpenAIProvider) embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(openaiEmbedRequest{Model: p.config.Model, Input: texts})
	if err != nil {
		return nil, synerrors.InternalError("marshaling openai embed request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, synerrors.InternalError("building openai embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, transportError("openai", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, protocolError("openai", resp)
	}

	var result openaiEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, synerrors.New(synerrors.ErrCodeTransportProtocol,
			"decoding openai embed response", err)
	}

	if len(result.Data) != len(texts) {
		return nil, synerrors.New(synerrors.ErrCodeEmbeddingCountMismatch,
			fmt.Sprintf("requested %d embeddings, got %d", len(texts), len(result.Data)), nil)
	}

	vecs := make([][]float32, len(texts))
	for _, item := range result.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, synerrors.New(synerrors.ErrCodeTransportProtocol,
				fmt.Sprintf("openai returned out-of-range index %d", item.Index), nil)
		}
		if len(item.Embedding) == 0 {
			return nil, synerrors.New(synerrors.ErrCodeEmbeddingEmpty,
				fmt.Sprintf("openai returned an empty embedding for item %d", item.Index), nil)
		}
		vecs[item.Index] = normalizeVector(item.Embedding)
	}
	for i, vec := range vecs {
		if vec == nil {
			return nil, synerrors.New(synerrors.ErrCodeEmbeddingCountMismatch,
				fmt.Sprintf("openai response is missing item %d", i), nil)
		}
	}
	return vecs, nil
}

func (p *OpenAIProvider) ensureOpen() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return synerrors.InternalError("openai provider is closed", nil)
	}
	return nil
}

// Dimensions returns the embedding dimension.
func (p *OpenAIProvider) Dimensions() int {
	return p.dims
}

// ModelName returns the model identifier.
func (p *OpenAIProvider) ModelName() string {
	return p.config.Model
}

// Available reports whether the service answers authenticated requests.
func (p *OpenAIProvider) Available(ctx context.Context) bool {
	if p.ensureOpen() != nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.BaseURL+"/v1/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Close releases HTTP resources.
func (p *OpenAIProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.transport.CloseIdleConnections()
	return nil
}
