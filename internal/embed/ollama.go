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

// OllamaProvider generates embeddings through Ollama's HTTP API.
type OllamaProvider struct {
	client    *http.Client
	transport *http.Transport
	config    OllamaConfig
	modelName string
	dims      int

	mu     sync.RWMutex
	closed bool
}

var _ Provider = (*OllamaProvider)(nil)

// NewOllamaProvider connects to Ollama, resolves the configured model
// against the installed ones, and probes the embedding dimension when the
// config leaves it unset.
func NewOllamaProvider(ctx context.Context, cfg OllamaConfig) (*OllamaProvider, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
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

	p := &OllamaProvider{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		modelName: cfg.Model,
		dims:      cfg.Dimensions,
	}

	setupCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	model, err := p.resolveModel(setupCtx)
	if err != nil {
		transport.CloseIdleConnections()
		return nil, err
	}
	p.modelName = model

	if p.dims == 0 {
		dims, err := p.probeDimensions(setupCtx)
		if err != nil {
			transport.CloseIdleConnections()
			return nil, err
		}
		p.dims = dims
	}

	return p, nil
}

// resolveModel matches the configured model against the installed ones.
// A bare name matches a tagged install, so "nomic-embed-text" resolves to
// "nomic-embed-text:latest".
func (p *OllamaProvider) resolveModel(ctx context.Context) (string, error) {
	models, err := p.listModels(ctx)
	if err != nil {
		return "", err
	}

	installed := make(map[string]string, len(models)*2)
	names := make([]string, 0, len(models))
	for _, m := range models {
		name := strings.ToLower(m.Name)
		installed[name] = m.Name
		base := strings.SplitN(name, ":", 2)[0]
		if _, ok := installed[base]; !ok {
			installed[base] = m.Name
		}
		names = append(names, m.Name)
	}

	want := strings.ToLower(p.config.Model)
	if actual, ok := installed[want]; ok {
		return actual, nil
	}
	if actual, ok := installed[strings.SplitN(want, ":", 2)[0]]; ok {
		return actual, nil
	}

	return "", synerrors.New(synerrors.ErrCodeModelNotFound,
		fmt.Sprintf("model %q is not installed in Ollama", p.config.Model), nil).
		WithDetail("installed", strings.Join(names, ", ")).
		WithSuggestion(fmt.Sprintf("run: ollama pull %s", p.config.Model))
}

// listModels fetches the installed models from /api/tags.
func (p *OllamaProvider) listModels(ctx context.Context) ([]ollamaModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.Host+"/api/tags", nil)
	if err != nil {
		return nil, synerrors.InternalError("building ollama tags request", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, transportError("ollama", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, protocolError("ollama", resp)
	}

	var result ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, synerrors.New(synerrors.ErrCodeTransportProtocol,
			"decoding ollama tags response", err)
	}
	return result.Models, nil
}

// probeDimensions embeds a throwaway text to learn the model's dimension.
func (p *OllamaProvider) probeDimensions(ctx context.Context) (int, error) {
	vecs, err := p.embed(ctx, []string{"dimension probe"})
	if err != nil {
		return 0, err
	}
	return len(vecs[0]), nil
}

// EmbedBatch embeds texts in request-sized sub-batches.
func (p *OllamaProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := p.ensureOpen(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	pending := make([]int, 0, len(texts))
	for i, text := range texts {
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
func (p *OllamaProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
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

// embedWithRetry wraps one embed request in per-attempt timeouts and
// transport retry.
func (p *OllamaProvider) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
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

// embed performs one /api/embed request. Every returned vector is
// normalized to unit length.
func (p *OllamaProvider) embed(ctx context.Context, texts []string) ([][]float32, error) {
	// The API accepts a plain string or an array; sending the scalar for
	// single texts matches what ollama's own client does.
	var input any = texts
	if len(texts) == 1 {
		input = texts[0]
	}

	body, err := json.Marshal(ollamaEmbedRequest{Model: p.modelName, Input: input})
	if err != nil {
		return nil, synerrors.InternalError("marshaling ollama embed request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, synerrors.InternalError("building ollama embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, transportError("ollama", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, protocolError("ollama", resp)
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, synerrors.New(synerrors.ErrCodeTransportProtocol,
			"decoding ollama embed response", err)
	}

	if len(result.Embeddings) != len(texts) {
		return nil, synerrors.New(synerrors.ErrCodeEmbeddingCountMismatch,
			fmt.Sprintf("requested %d embeddings, got %d", len(texts), len(result.Embeddings)), nil)
	}

	vecs := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		if len(emb) == 0 {
			return nil, synerrors.New(synerrors.ErrCodeEmbeddingEmpty,
				fmt.Sprintf("ollama returned an empty embedding for item %d", i), nil)
		}
		vec := make([]float32, len(emb))
		for j, v := range emb {
			vec[j] = float32(v)
		}
		vecs[i] = normalizeVector(vec)
	}
	return vecs, nil
}

func (p *OllamaProvider) ensureOpen() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return synerrors.InternalError("ollama provider is closed", nil)
	}
	return nil
}

// Dimensions returns the embedding dimension.
func (p *OllamaProvider) Dimensions() int {
	return p.dims
}

// ModelName returns the resolved model identifier.
func (p *OllamaProvider) ModelName() string {
	return p.modelName
}

// Available reports whether the Ollama server answers.
func (p *OllamaProvider) Available(ctx context.Context) bool {
	if p.ensureOpen() != nil {
		return false
	}
	_, err := p.listModels(ctx)
	return err == nil
}

// Close releases HTTP resources.
func (p *OllamaProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.transport.CloseIdleConnections()
	return nil
}
