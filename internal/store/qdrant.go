package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	synerrors "github.com/casheiro/synapstor-go/internal/errors"
)

// DefaultQdrantTimeout bounds a single Qdrant request.
const DefaultQdrantTimeout = 30 * time.Second

const qdrantPoolSize = 8

// errCollectionNotFound marks a 404 internally; public methods translate
// it into the semantics their contract requires.
var errCollectionNotFound = errors.New("collection not found")

// QdrantConfig configures the REST client.
type QdrantConfig struct {
	// URL is the Qdrant endpoint.
	URL string
	// APIKey is sent in the api-key header when non-empty.
	APIKey string
	// VectorName is the named vector used inside collections.
	VectorName string
	// Timeout bounds each request.
	Timeout time.Duration
}

// QdrantStore talks to a Qdrant server over its REST API. One instance is
// shared across all workers of a run.
type QdrantStore struct {
	client     *http.Client
	transport  *http.Transport
	url        string
	apiKey     string
	vectorName string
}

var _ Store = (*QdrantStore)(nil)

// NewQdrantStore builds the client. No connection is made until the first
// call.
func NewQdrantStore(cfg QdrantConfig) *QdrantStore {
	if cfg.VectorName == "" {
		cfg.VectorName = "vector"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultQdrantTimeout
	}

	transport := &http.Transport{
		MaxIdleConns:        qdrantPoolSize,
		MaxIdleConnsPerHost: qdrantPoolSize,
		IdleConnTimeout:     30 * time.Second,
	}

	return &QdrantStore{
		client:     &http.Client{Transport: transport, Timeout: cfg.Timeout},
		transport:  transport,
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		vectorName: cfg.VectorName,
	}
}

// VectorName returns the named vector this client writes and queries.
func (s *QdrantStore) VectorName() string {
	return s.vectorName
}

type qdrantVectorParams struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
}

type qdrantPoint struct {
	ID      string               `json:"id"`
	Vector  map[string][]float32 `json:"vector"`
	Payload map[string]any       `json:"payload"`
}

// Ensure creates the collection with a named cosine vector, or verifies
// the existing one matches the model's dimension.
func (s *QdrantStore) Ensure(ctx context.Context, collection string, dims int) error {
	size, err := s.collectionVectorSize(ctx, collection)
	if errors.Is(err, errCollectionNotFound) {
		body := map[string]any{
			"vectors": map[string]any{
				s.vectorName: qdrantVectorParams{Size: dims, Distance: "Cosine"},
			},
		}
		return s.doJSON(ctx, http.MethodPut, "/collections/"+url.PathEscape(collection), body, nil)
	}
	if err != nil {
		return err
	}

	if size == 0 {
		return synerrors.ConfigError(
			fmt.Sprintf("collection %q has no vector named %q", collection, s.vectorName), nil).
			WithSuggestion("recreate the collection or set store.vector_name to match it")
	}
	if size != dims {
		return synerrors.New(synerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("collection %q stores %d-dimensional vectors, the model produces %d",
				collection, size, dims), nil).
			WithSuggestion("reindex with --recreate-collection or switch the embedding model")
	}
	return nil
}

// collectionVectorSize returns the dimension of the named vector, 0 when
// the collection exists without it.
func (s *QdrantStore) collectionVectorSize(ctx context.Context, collection string) (int, error) {
	var out struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors json.RawMessage `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := s.doJSON(ctx, http.MethodGet, "/collections/"+url.PathEscape(collection), nil, &out); err != nil {
		return 0, err
	}

	// Named-vector collections carry a map; single-vector ones carry the
	// params object directly and count as "our vector is absent".
	var named map[string]qdrantVectorParams
	if err := json.Unmarshal(out.Result.Config.Params.Vectors, &named); err == nil {
		return named[s.vectorName].Size, nil
	}
	return 0, nil
}

// Upsert writes entries as points keyed by their deterministic id,
// waiting for the write to be applied.
func (s *QdrantStore) Upsert(ctx context.Context, collection string, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	points := make([]qdrantPoint, len(entries))
	for i, e := range entries {
		points[i] = qdrantPoint{
			ID:      e.ID,
			Vector:  map[string][]float32{s.vectorName: e.Vector},
			Payload: payloadFromEntry(e),
		}
	}

	err := s.doJSON(ctx, http.MethodPut,
		"/collections/"+url.PathEscape(collection)+"/points?wait=true",
		map[string]any{"points": points}, nil)
	if errors.Is(err, errCollectionNotFound) {
		return synerrors.ConfigError(
			fmt.Sprintf("collection %q does not exist", collection), nil).
			WithSuggestion("call Ensure before writing entries")
	}
	return err
}

// Delete removes points by id, waiting for the write to be applied.
// Unknown ids and missing collections are ignored.
func (s *QdrantStore) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	err := s.doJSON(ctx, http.MethodPost,
		"/collections/"+url.PathEscape(collection)+"/points/delete?wait=true",
		map[string]any{"points": ids}, nil)
	if errors.Is(err, errCollectionNotFound) {
		return nil
	}
	return err
}

// Search runs a similarity query against the named vector.
func (s *QdrantStore) Search(ctx context.Context, collection string, vector []float32, limit int, filter Filter) ([]Result, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	body := map[string]any{
		"vector":       map[string]any{"name": s.vectorName, "vector": vector},
		"limit":        limit,
		"with_payload": true,
	}
	if f := qdrantFilter(filter); f != nil {
		body["filter"] = f
	}

	var out struct {
		Result []struct {
			ID      json.RawMessage `json:"id"`
			Score   float64         `json:"score"`
			Payload map[string]any  `json:"payload"`
		} `json:"result"`
	}
	err := s.doJSON(ctx, http.MethodPost,
		"/collections/"+url.PathEscape(collection)+"/points/search", body, &out)
	if errors.Is(err, errCollectionNotFound) {
		return []Result{}, nil
	}
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(out.Result))
	for _, hit := range out.Result {
		results = append(results, resultFromPayload(decodePointID(hit.ID), hit.Score, hit.Payload))
	}
	return results, nil
}

// ListCollections returns the collection names, sorted.
func (s *QdrantStore) ListCollections(ctx context.Context) ([]string, error) {
	var out struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}
	if err := s.doJSON(ctx, http.MethodGet, "/collections", nil, &out); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(out.Result.Collections))
	for _, c := range out.Result.Collections {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return names, nil
}

// DeleteCollection drops the collection. Deleting a missing collection is
// not an error.
func (s *QdrantStore) DeleteCollection(ctx context.Context, collection string) error {
	err := s.doJSON(ctx, http.MethodDelete, "/collections/"+url.PathEscape(collection), nil, nil)
	if errors.Is(err, errCollectionNotFound) {
		return nil
	}
	return err
}

// Count returns the exact number of points. A missing collection counts
// zero.
func (s *QdrantStore) Count(ctx context.Context, collection string) (int, error) {
	var out struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := s.doJSON(ctx, http.MethodPost,
		"/collections/"+url.PathEscape(collection)+"/points/count",
		map[string]any{"exact": true}, &out)
	if errors.Is(err, errCollectionNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return out.Result.Count, nil
}

// Close releases pooled connections.
func (s *QdrantStore) Close() error {
	s.transport.CloseIdleConnections()
	return nil
}

// doJSON sends one request and decodes the response into out when given.
func (s *QdrantStore) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return synerrors.InternalError("marshaling qdrant request", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.url+path, reader)
	if err != nil {
		return synerrors.InternalError("building qdrant request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return qdrantTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errCollectionNotFound
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// Schema and auth problems; retrying the same request cannot help.
		return synerrors.ConfigError(
			fmt.Sprintf("qdrant rejected %s %s with status %d", method, path, resp.StatusCode), nil).
			WithDetail("body", bodyExcerpt(resp.Body))
	case resp.StatusCode >= 300:
		return synerrors.New(synerrors.ErrCodeTransportProtocol,
			fmt.Sprintf("qdrant returned status %d for %s %s", resp.StatusCode, method, path), nil).
			WithDetail("body", bodyExcerpt(resp.Body))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return synerrors.New(synerrors.ErrCodeTransportProtocol,
				"decoding qdrant response", err)
		}
	}
	return nil
}

// qdrantTransportError classifies a failed round trip. Timeouts and
// refused connections are retryable; caller cancellation passes through.
func qdrantTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	code := synerrors.ErrCodeTransportUnavailable
	var netErr net.Error
	if (errors.As(err, &netErr) && netErr.Timeout()) || errors.Is(err, context.DeadlineExceeded) {
		code = synerrors.ErrCodeTransportTimeout
	}
	return synerrors.New(code, "qdrant request failed", err)
}

func bodyExcerpt(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(data))
}

// qdrantFilter renders a metadata filter as a must-match clause per key,
// in sorted key order so identical filters build identical requests.
func qdrantFilter(filter Filter) map[string]any {
	if len(filter) == 0 {
		return nil
	}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	must := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		must = append(must, map[string]any{
			"key":   "metadata." + k,
			"match": map[string]any{"value": filter[k]},
		})
	}
	return map[string]any{"must": must}
}

// decodePointID renders a point id that may arrive as a JSON string or
// number.
func decodePointID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
