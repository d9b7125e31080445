package ingest

import (
	"encoding/json"
	"fmt"
	"io"
)

// StripEmbeddings rewrites a corpus file without its precomputed
// "embedding" fields and reports how many were removed. Other fields are
// kept as they are; non-ASCII text is written unescaped.
func StripEmbeddings(r io.Reader, w io.Writer) (int, error) {
	var items []map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return 0, fmt.Errorf("failed to decode corpus: %w", err)
	}
	removed := 0
	for _, it := range items {
		if _, ok := it["embedding"]; ok {
			delete(it, "embedding")
			removed++
		}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(items); err != nil {
		return 0, fmt.Errorf("failed to encode corpus: %w", err)
	}
	return removed, nil
}
