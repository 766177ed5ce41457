package embed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casheiro/synapstor-go/internal/config"
	synerrors "github.com/casheiro/synapstor-go/internal/errors"
)

// =============================================================================
// Model Registry Mapping
// =============================================================================

func TestRegistryModel(t *testing.T) {
	tests := []struct {
		name  string
		model string
		want  string
	}{
		{"empty selects fallback", "", "nomic-embed-text"},
		{"hub name selects fallback", "sentence-transformers/all-MiniLM-L6-v2", "nomic-embed-text"},
		{"registry name kept", "mxbai-embed-large", "mxbai-embed-large"},
		{"tagged registry name kept", "nomic-embed-text:v1.5", "nomic-embed-text:v1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, registryModel(tt.model, "nomic-embed-text"))
		})
	}
}

// =============================================================================
// Provider Selection
// =============================================================================

func TestNew_StaticProvider(t *testing.T) {
	// Provider names are case insensitive; negative cache size disables
	// the cache wrapper.
	provider, err := New(context.Background(), config.EmbeddingsConfig{
		Provider:  "Static",
		CacheSize: -1,
	})
	require.NoError(t, err)
	defer func() { _ = provider.Close() }()

	_, ok := provider.(*StaticProvider)
	assert.True(t, ok)
	assert.Equal(t, DefaultStaticDimensions, provider.Dimensions())
}

func TestNew_WrapsProviderInCache(t *testing.T) {
	provider, err := New(context.Background(), config.EmbeddingsConfig{
		Provider:  "static",
		CacheSize: 16,
	})
	require.NoError(t, err)
	defer func() { _ = provider.Close() }()

	cached, ok := provider.(*Cached)
	require.True(t, ok)
	_, ok = cached.Inner().(*StaticProvider)
	assert.True(t, ok)
}

func TestNew_UnknownProviderFails(t *testing.T) {
	_, err := New(context.Background(), config.EmbeddingsConfig{Provider: "llamacpp"})

	require.Error(t, err)
	assert.Equal(t, synerrors.ErrCodeConfigInvalid, synerrors.GetCode(err))
	assert.Contains(t, err.Error(), "llamacpp")
}

func TestNew_OpenAIRequiresKey(t *testing.T) {
	_, err := New(context.Background(), config.EmbeddingsConfig{Provider: "openai"})

	require.Error(t, err)
	assert.Equal(t, synerrors.ErrCodeMissingParameter, synerrors.GetCode(err))
}

func TestNew_EmptyProviderDefaultsToOllama(t *testing.T) {
	srv := httptest.NewServer(http.NewServeMux())
	url := srv.URL
	srv.Close()

	_, err := New(context.Background(), config.EmbeddingsConfig{
		OllamaHost: url,
		CacheSize:  -1,
	})

	// The dead Ollama host proves which provider the empty name selected.
	require.Error(t, err)
	assert.Equal(t, synerrors.ErrCodeTransportUnavailable, synerrors.GetCode(err))
}

func TestNew_HubModelSelectsProviderDefault(t *testing.T) {
	// Given: an Ollama install that only has the default embedding model
	fake := newFakeOllama(8, "nomic-embed-text:latest")
	srv := fake.server(t)

	// When: the configured model is a hub-style name
	provider, err := New(context.Background(), config.EmbeddingsConfig{
		Provider:   "ollama",
		Model:      "sentence-transformers/all-MiniLM-L6-v2",
		OllamaHost: srv.URL,
		Dimensions: 8,
		CacheSize:  16,
	})
	require.NoError(t, err)
	defer func() { _ = provider.Close() }()

	// Then: the provider runs the registry default instead of failing
	assert.Equal(t, "nomic-embed-text:latest", provider.ModelName())

	cached, ok := provider.(*Cached)
	require.True(t, ok)
	_, ok = cached.Inner().(*OllamaProvider)
	assert.True(t, ok)
}
