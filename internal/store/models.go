package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"ragflow/internal/chunker"
)

// Meta keys maintained by the store and the indexer.
const (
	MetaVectorDim      = "vector_dim"
	MetaEmbeddingModel = "embedding_model"
)

// SearchResult is one stored chunk returned by Search. Distance is nil when
// the backend did not report one.
type SearchResult struct {
	ID       string
	Text     string
	Metadata map[string]any
	Distance *float64
}

// Filter restricts a search to chunks whose metadata equals every entry.
type Filter map[string]any

func encodeMetadata(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

// decodeMetadata keeps integral numbers as int so chunk_index round-trips.
func decodeMetadata(s string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	m := map[string]any{}
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	for k, v := range m {
		n, ok := v.(json.Number)
		if !ok {
			continue
		}
		if i, err := n.Int64(); err == nil {
			m[k] = int(i)
		} else if f, err := n.Float64(); err == nil {
			m[k] = f
		}
	}
	return m, nil
}

// SourceOf picks the provenance key DeleteSource matches against: the file
// path for file chunks, TextSource(i) for indexed strings.
func SourceOf(m map[string]any) string {
	if s, ok := m[chunker.MetaSourceFile].(string); ok {
		return s
	}
	if i, ok := m[chunker.MetaSourceTextIndex].(int); ok {
		return TextSource(i)
	}
	return ""
}

// TextSource names the i-th string passed to the indexer.
func TextSource(i int) string {
	return "text:" + strconv.Itoa(i)
}
