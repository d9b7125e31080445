package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripEmbeddingsCommand_InPlace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"question": "מה זה ביטוח מבנה?", "answer": "כיסוי לקירות.", "embedding": [0.1, 0.2]},
		{"question": "מה זה צד ג?", "answer": "כיסוי לאחרים."}
	]`), 0o644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"strip-embeddings", "--file", path})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "removed 1 embeddings")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var recs []map[string]any
	require.NoError(t, json.Unmarshal(raw, &recs))
	require.Len(t, recs, 2)
	assert.NotContains(t, recs[0], "embedding")
	assert.Equal(t, "מה זה ביטוח מבנה?", recs[0]["question"])

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file is cleaned up")
}

func TestStripEmbeddingsCommand_MissingFile(t *testing.T) {
	outFile = ""
	rootCmd.SetArgs([]string{"strip-embeddings", "--file", filepath.Join(t.TempDir(), "nope.json")})
	assert.Error(t, rootCmd.Execute())
}
