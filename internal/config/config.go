// Package config provides the explicit configuration for synapstor.
//
// Configuration is constructed exactly once at process start and passed by
// value into component constructors. Precedence, lowest to highest:
//
//  1. Hardcoded defaults
//  2. User/global config (~/.config/synapstor/config.yaml)
//  3. Project config (.synapstor.yaml in project root)
//  4. Environment variables (QDRANT_*, SYNAPSTOR_*)
//
// CLI flags are applied by the command layer on top of the loaded value.
// No component performs ambient environment lookups after Load returns.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	synerrors "github.com/casheiro/synapstor-go/internal/errors"
)

// Config is the complete synapstor configuration.
type Config struct {
	Version    int              `yaml:"version"`
	Project    ProjectConfig    `yaml:"project"`
	Store      StoreConfig      `yaml:"store"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Tags       TagsConfig       `yaml:"tags"`
	Indexer    IndexerConfig    `yaml:"indexer"`
	Search     SearchConfig     `yaml:"search"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ProjectConfig identifies the project being indexed.
type ProjectConfig struct {
	// Name is the project name stored in entry metadata and used for
	// search filtering. Defaults to the base name of Path.
	Name string `yaml:"name"`
	// Path is the project root to index.
	Path string `yaml:"path"`
}

// StoreConfig configures the vector store connection.
type StoreConfig struct {
	// Backend selects the store implementation: "qdrant" or "local".
	Backend string `yaml:"backend"`
	// URL is the Qdrant endpoint.
	URL string `yaml:"url"`
	// APIKey authenticates against Qdrant. Usually set via QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// Collection is the target collection name.
	Collection string `yaml:"collection"`
	// VectorName is the named vector used inside the collection.
	// Empty means derive from the embedding model.
	VectorName string `yaml:"vector_name"`
	// DataDir is where the local backend and the keyword sidecar persist.
	DataDir string `yaml:"data_dir"`
	// DisableKeyword turns off the keyword sidecar index that is otherwise
	// maintained alongside vector upserts.
	DisableKeyword bool `yaml:"disable_keyword"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the model family: "ollama", "openai" or "static".
	Provider string `yaml:"provider"`
	// Model is the embedding model identifier.
	Model string `yaml:"model"`
	// Dimensions is the vector dimensionality. 0 means auto-detect.
	Dimensions int `yaml:"dimensions"`
	// BatchSize is the number of texts per embedding request.
	BatchSize int `yaml:"batch_size"`
	// OllamaHost is the Ollama API endpoint.
	OllamaHost string `yaml:"ollama_host"`
	// OpenAIBaseURL is the base URL for OpenAI-compatible services.
	OpenAIBaseURL string `yaml:"openai_base_url"`
	// OpenAIAPIKey authenticates OpenAI-compatible services.
	// Usually set via SYNAPSTOR_OPENAI_API_KEY.
	OpenAIAPIKey string `yaml:"openai_api_key"`
	// CacheSize is the embedding LRU cache capacity. Negative disables
	// caching.
	CacheSize int `yaml:"cache_size"`
}

// ChunkingConfig configures how file content is split.
type ChunkingConfig struct {
	// MaxSize is the maximum chunk length in characters.
	MaxSize int `yaml:"max_size"`
	// Overlap is the number of trailing characters carried into the next chunk.
	Overlap int `yaml:"overlap"`
	// Separators are tried from most to least specific.
	Separators []string `yaml:"separators"`
}

// TagsConfig configures similarity-based tag assignment.
type TagsConfig struct {
	// Enabled turns tag assignment on.
	Enabled bool `yaml:"enabled"`
	// Threshold is the minimum cosine similarity for a tag to attach.
	Threshold float64 `yaml:"threshold"`
}

// IndexerConfig configures the parallel file indexer.
type IndexerConfig struct {
	// Workers is the worker pool size.
	Workers int `yaml:"workers"`
	// MaxFileSize is the per-file size cap in bytes.
	MaxFileSize int64 `yaml:"max_file_size"`
	// Incremental skips files whose content hash is unchanged since the
	// last run, using the local catalog.
	Incremental bool `yaml:"incremental"`
	// WatchDebounce is the settle delay for watch mode (e.g. "500ms").
	WatchDebounce string `yaml:"watch_debounce"`
}

// SearchConfig configures the query flow.
type SearchConfig struct {
	// MaxResults is the default result limit.
	MaxResults int `yaml:"max_results"`
	// Mode is the default retrieval mode: "semantic", "keyword" or "hybrid".
	Mode string `yaml:"mode"`
	// RRFConstant is the smoothing parameter for hybrid rank fusion.
	RRFConstant int `yaml:"rrf_constant"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the minimum log level.
	Level string `yaml:"level"`
	// File routes records to a rotating file under ~/.synapstor/logs
	// instead of stderr.
	File bool `yaml:"file"`
}

// Defaults mirrored from the original indexer.
const (
	DefaultCollection  = "synapstor"
	DefaultModel       = "sentence-transformers/all-MiniLM-L6-v2"
	DefaultQdrantURL   = "http://localhost:6333"
	DefaultWorkers     = 4
	DefaultMaxFileSize = 5 * 1024 * 1024 // 5MB
	DefaultBatchSize   = 10
	DefaultThreshold   = 0.8
)

// Per-project configuration file names, checked in order.
const (
	ProjectConfigName    = ".synapstor.yaml"
	ProjectConfigNameAlt = ".synapstor.yml"
)

// DefaultSeparators are tried from most to least specific:
// paragraph, line, sentence, clause, word.
func DefaultSeparators() []string {
	return []string{"\n\n", "\n", ". ", ", ", " "}
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Store: StoreConfig{
			Backend:    "qdrant",
			URL:        DefaultQdrantURL,
			Collection: DefaultCollection,
			VectorName: "", // Derived from the model unless set
			DataDir:    defaultDataDir(),
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "ollama",
			Model:      DefaultModel,
			Dimensions: 0, // Auto-detect from the provider
			BatchSize:  DefaultBatchSize,
			OllamaHost: "", // Empty uses the provider default
			CacheSize:  1024,
		},
		Chunking: ChunkingConfig{
			MaxSize:    1000,
			Overlap:    200,
			Separators: DefaultSeparators(),
		},
		Tags: TagsConfig{
			Enabled:   false,
			Threshold: DefaultThreshold,
		},
		Indexer: IndexerConfig{
			Workers:       DefaultWorkers,
			MaxFileSize:   DefaultMaxFileSize,
			Incremental:   false,
			WatchDebounce: "500ms",
		},
		Search: SearchConfig{
			MaxResults:  10,
			Mode:        "semantic",
			RRFConstant: 60,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  false,
		},
	}
}

// defaultDataDir returns the default local data directory.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".synapstor", "data")
	}
	return filepath.Join(home, ".synapstor", "data")
}

// GetUserConfigPath returns the path to the user/global configuration file.
// Follows the XDG Base Directory layout:
//   - $XDG_CONFIG_HOME/synapstor/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/synapstor/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "synapstor", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "synapstor", "config.yaml")
	}
	return filepath.Join(home, ".config", "synapstor", "config.yaml")
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()

	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}

	return cfg, nil
}

// Load loads configuration for the given project directory.
// See the package comment for precedence.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .synapstor.yaml or .synapstor.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ProjectConfigName)
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ProjectConfigNameAlt)
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	// No config file is fine, defaults apply
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return synerrors.ConfigError(
			fmt.Sprintf("failed to read config file %s", path), err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return synerrors.ConfigError(
			fmt.Sprintf("failed to parse config file %s", path), err).
			WithSuggestion("check the YAML syntax of " + path)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Project
	if other.Project.Name != "" {
		c.Project.Name = other.Project.Name
	}
	if other.Project.Path != "" {
		c.Project.Path = other.Project.Path
	}

	// Store
	if other.Store.Backend != "" {
		c.Store.Backend = other.Store.Backend
	}
	if other.Store.URL != "" {
		c.Store.URL = other.Store.URL
	}
	if other.Store.APIKey != "" {
		c.Store.APIKey = other.Store.APIKey
	}
	if other.Store.Collection != "" {
		c.Store.Collection = other.Store.Collection
	}
	if other.Store.VectorName != "" {
		c.Store.VectorName = other.Store.VectorName
	}
	if other.Store.DataDir != "" {
		c.Store.DataDir = other.Store.DataDir
	}
	if other.Store.DisableKeyword {
		c.Store.DisableKeyword = true
	}

	// Embeddings
	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.OpenAIBaseURL != "" {
		c.Embeddings.OpenAIBaseURL = other.Embeddings.OpenAIBaseURL
	}
	if other.Embeddings.OpenAIAPIKey != "" {
		c.Embeddings.OpenAIAPIKey = other.Embeddings.OpenAIAPIKey
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}

	// Chunking
	if other.Chunking.MaxSize != 0 {
		c.Chunking.MaxSize = other.Chunking.MaxSize
	}
	if other.Chunking.Overlap != 0 {
		c.Chunking.Overlap = other.Chunking.Overlap
	}
	if len(other.Chunking.Separators) > 0 {
		c.Chunking.Separators = other.Chunking.Separators
	}

	// Tags
	if other.Tags.Enabled {
		c.Tags.Enabled = other.Tags.Enabled
	}
	if other.Tags.Threshold != 0 {
		c.Tags.Threshold = other.Tags.Threshold
	}

	// Indexer
	if other.Indexer.Workers != 0 {
		c.Indexer.Workers = other.Indexer.Workers
	}
	if other.Indexer.MaxFileSize != 0 {
		c.Indexer.MaxFileSize = other.Indexer.MaxFileSize
	}
	if other.Indexer.Incremental {
		c.Indexer.Incremental = other.Indexer.Incremental
	}
	if other.Indexer.WatchDebounce != "" {
		c.Indexer.WatchDebounce = other.Indexer.WatchDebounce
	}

	// Search
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}
	if other.Search.Mode != "" {
		c.Search.Mode = other.Search.Mode
	}
	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}

	// Logging
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File {
		c.Logging.File = other.Logging.File
	}
}

// applyEnvOverrides applies environment variable overrides. The bare
// QDRANT_* names match the original deployment convention; everything else
// is prefixed SYNAPSTOR_.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("QDRANT_URL"); v != "" {
		c.Store.URL = v
	}
	if v := os.Getenv("QDRANT_API_KEY"); v != "" {
		c.Store.APIKey = v
	}
	if v := os.Getenv("SYNAPSTOR_COLLECTION"); v != "" {
		c.Store.Collection = v
	}
	if v := os.Getenv("SYNAPSTOR_STORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("SYNAPSTOR_EMBEDDING_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("SYNAPSTOR_EMBEDDING_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("SYNAPSTOR_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("SYNAPSTOR_OPENAI_API_KEY"); v != "" {
		c.Embeddings.OpenAIAPIKey = v
	}
	if v := os.Getenv("SYNAPSTOR_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Indexer.Workers = n
		}
	}
	if v := os.Getenv("SYNAPSTOR_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate validates the configuration. Returned errors are fatal
// configuration errors: they abort before any write.
func (c *Config) Validate() error {
	if c.Chunking.MaxSize <= 0 {
		return synerrors.New(synerrors.ErrCodeChunkSpecInvalid,
			fmt.Sprintf("chunking.max_size must be positive, got %d", c.Chunking.MaxSize), nil)
	}
	if c.Chunking.Overlap < 0 {
		return synerrors.New(synerrors.ErrCodeChunkSpecInvalid,
			fmt.Sprintf("chunking.overlap must be non-negative, got %d", c.Chunking.Overlap), nil)
	}
	if c.Chunking.Overlap >= c.Chunking.MaxSize {
		return synerrors.New(synerrors.ErrCodeChunkSpecInvalid,
			fmt.Sprintf("chunking.overlap (%d) must be smaller than chunking.max_size (%d)",
				c.Chunking.Overlap, c.Chunking.MaxSize), nil)
	}

	if c.Tags.Threshold < 0 || c.Tags.Threshold > 1 {
		return synerrors.ConfigError(
			fmt.Sprintf("tags.threshold must be between 0 and 1, got %f", c.Tags.Threshold), nil)
	}

	if c.Indexer.Workers < 1 {
		return synerrors.ConfigError(
			fmt.Sprintf("indexer.workers must be at least 1, got %d", c.Indexer.Workers), nil)
	}
	if c.Indexer.MaxFileSize <= 0 {
		return synerrors.ConfigError(
			fmt.Sprintf("indexer.max_file_size must be positive, got %d", c.Indexer.MaxFileSize), nil)
	}

	switch strings.ToLower(c.Store.Backend) {
	case "qdrant", "local":
	default:
		return synerrors.ConfigError(
			fmt.Sprintf("store.backend must be 'qdrant' or 'local', got %s", c.Store.Backend), nil)
	}

	switch strings.ToLower(c.Embeddings.Provider) {
	case "ollama", "openai", "static":
	default:
		return synerrors.ConfigError(
			fmt.Sprintf("embeddings.provider must be 'ollama', 'openai' or 'static', got %s", c.Embeddings.Provider), nil)
	}

	switch strings.ToLower(c.Search.Mode) {
	case "semantic", "keyword", "hybrid":
	default:
		return synerrors.ConfigError(
			fmt.Sprintf("search.mode must be 'semantic', 'keyword' or 'hybrid', got %s", c.Search.Mode), nil)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return synerrors.ConfigError(
			fmt.Sprintf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level), nil)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// FindProjectRoot finds the project root directory by walking up from
// startDir looking for .git or a .synapstor.yaml/.yml file.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}

		if fileExists(filepath.Join(currentDir, ".synapstor.yaml")) ||
			fileExists(filepath.Join(currentDir, ".synapstor.yml")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			// Reached filesystem root, fall back to the starting directory
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
