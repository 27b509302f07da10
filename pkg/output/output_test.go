package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/graph-harvester/pkg/record"
)

func TestEncode_Format(t *testing.T) {
	items := []record.Item{
		{"zeta": "ü<&>", "alpha": json.Number("10"), "nested": map[string]any{"b": 1, "a": 2}},
	}

	data, err := Marshal(items)
	require.NoError(t, err)

	want := `[
    {
        "alpha": 10,
        "nested": {
            "a": 2,
            "b": 1
        },
        "zeta": "ü<&>"
    }
]
`
	assert.Equal(t, want, string(data))
}

func TestEncode_Empty(t *testing.T) {
	data, err := Marshal(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.json")

	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))

	items := []record.Item{{"id": "1"}, {"id": "2"}}
	require.NoError(t, WriteFile(path, items))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded []map[string]string
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, []map[string]string{{"id": "1"}, {"id": "2"}}, decoded)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestWriteFile_MissingDirectory(t *testing.T) {
	err := WriteFile(filepath.Join(t.TempDir(), "missing", "out.json"), nil)
	assert.Error(t, err)
}

func TestWriteFile_Idempotent(t *testing.T) {
	dir := t.TempDir()
	items := []record.Item{{"b": "2", "a": "1"}}

	first := filepath.Join(dir, "first.json")
	second := filepath.Join(dir, "second.json")
	require.NoError(t, WriteFile(first, items))
	require.NoError(t, WriteFile(second, items))

	a, _ := os.ReadFile(first)
	b, _ := os.ReadFile(second)
	assert.Equal(t, a, b)
}
