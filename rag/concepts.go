package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/conceptrag/internal/tlsutil"
)

// Concept 是从文本中抽取的领域概念.
type Concept struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	MatchScore   float64  `json:"match_score"`
	SemanticTags []string `json:"semantic_tags"`
	// Inconsistent 仅由一致性检查写入, 且只作用于答案概念.
	Inconsistent bool `json:"inconsistent,omitempty"`
}

// ConceptIDs returns the ids of the given concepts in order.
func ConceptIDs(concepts []Concept) []string {
	ids := make([]string, len(concepts))
	for i, c := range concepts {
		ids[i] = c.ID
	}
	return ids
}

// ConceptExtractor 调用外部概念抽取服务.
type ConceptExtractor interface {
	Extract(ctx context.Context, text string, maxConcepts int, premium bool) ([]Concept, error)
}

// HTTPConceptExtractorConfig 配置概念抽取服务客户端.
type HTTPConceptExtractorConfig struct {
	URL     string        `json:"url"`
	Timeout time.Duration `json:"timeout"`
}

// HTTPConceptExtractor 通过 GET ?text=&o=&p= 调用抽取服务.
type HTTPConceptExtractor struct {
	config HTTPConceptExtractorConfig
	client *http.Client
	logger *zap.Logger
}

// NewHTTPConceptExtractor creates an extraction client.
func NewHTTPConceptExtractor(config HTTPConceptExtractorConfig, logger *zap.Logger) *HTTPConceptExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &HTTPConceptExtractor{
		config: config,
		client: tlsutil.SecureHTTPClient(config.Timeout),
		logger: logger.With(zap.String("component", "concept_extractor")),
	}
}

// Extract implements ConceptExtractor.
func (e *HTTPConceptExtractor) Extract(ctx context.Context, text string, maxConcepts int, premium bool) ([]Concept, error) {
	u, err := url.Parse(e.config.URL)
	if err != nil {
		return nil, fmt.Errorf("parse concept service url: %w", err)
	}
	q := u.Query()
	q.Set("text", text)
	q.Set("o", strconv.Itoa(maxConcepts))
	// the service expects Python-style booleans
	if premium {
		q.Set("p", "True")
	} else {
		q.Set("p", "False")
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build concept request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("concept service request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read concept response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("concept service returned status %d", resp.StatusCode)
	}
	concepts, err := ParseConcepts(body)
	if err != nil {
		e.logger.Debug("malformed concept response", zap.ByteString("body", truncateBytes(body, 512)))
		return nil, err
	}
	return concepts, nil
}

// ParseConcepts decodes either a list of concept records or a column-oriented object
// ({"id": [...], "name": [...], ...} or {"id": {"0": ...}, ...}).
func ParseConcepts(body []byte) ([]Concept, error) {
	var records []Concept
	if err := json.Unmarshal(body, &records); err == nil {
		return records, nil
	}

	var columns map[string]json.RawMessage
	if err := json.Unmarshal(body, &columns); err != nil {
		return nil, fmt.Errorf("decode concepts: %w", err)
	}
	if len(columns) == 0 {
		return []Concept{}, nil
	}

	var (
		ids, names []string
		scores     []float64
		tags       [][]string
	)
	if err := decodeColumn(columns["id"], &ids); err != nil {
		return nil, fmt.Errorf("decode concept ids: %w", err)
	}
	if err := decodeColumn(columns["name"], &names); err != nil {
		return nil, fmt.Errorf("decode concept names: %w", err)
	}
	if err := decodeColumn(columns["match_score"], &scores); err != nil {
		return nil, fmt.Errorf("decode concept scores: %w", err)
	}
	if err := decodeColumn(columns["semantic_tags"], &tags); err != nil {
		return nil, fmt.Errorf("decode concept tags: %w", err)
	}
	if len(names) != len(ids) || (scores != nil && len(scores) != len(ids)) || (tags != nil && len(tags) != len(ids)) {
		return nil, fmt.Errorf("decode concepts: column lengths differ")
	}

	concepts := make([]Concept, len(ids))
	for i := range ids {
		concepts[i] = Concept{ID: ids[i], Name: names[i]}
		if scores != nil {
			concepts[i].MatchScore = scores[i]
		}
		if tags != nil {
			concepts[i].SemanticTags = tags[i]
		}
	}
	return concepts, nil
}

// decodeColumn accepts a JSON array or an index-keyed object ("0", "1", ...).
func decodeColumn[T any](raw json.RawMessage, dst *[]T) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err == nil {
		return nil
	}
	var indexed map[string]T
	if err := json.Unmarshal(raw, &indexed); err != nil {
		return err
	}
	out := make([]T, len(indexed))
	for k, v := range indexed {
		i, err := strconv.Atoi(k)
		if err != nil || i < 0 || i >= len(out) {
			return fmt.Errorf("bad row index %q", k)
		}
		out[i] = v
	}
	*dst = out
	return nil
}

func truncateBytes(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
