package engine

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifactName_SanitizesTraversal(t *testing.T) {
	name := ArtifactName("../../etc/passwd; rm -rf", 1, "png")

	assert.Regexp(t, regexp.MustCompile(`^[A-Za-z0-9_-]+_1\.png$`), name)
	assert.NotContains(t, name, "/")
	assert.NotContains(t, name, "..")
	assert.Contains(t, name, "_1.")
	assert.Equal(t, name, filepath.Base(name))
}

func TestSanitizeID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"sunset-01", "sunset-01"},
		{"a b  c", "a_b_c"},
		{"café", "caf_"},
		{"", "item"},
		{"///", "item"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeID(tt.in), tt.in)
	}

	long := SanitizeID(strings.Repeat("x", 300))
	assert.Len(t, long, 120)
}

func TestInferExtension(t *testing.T) {
	ext, mt := InferExtension("image/webp", nil, "jpg")
	assert.Equal(t, "webp", ext)
	assert.Equal(t, "image/webp", mt)

	ext, _ = InferExtension("image/jpeg; charset=binary", nil, "png")
	assert.Equal(t, "jpg", ext)

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	ext, mt = InferExtension("application/octet-stream", png, "jpg")
	assert.Equal(t, "png", ext)
	assert.Equal(t, "image/png", mt)

	ext, _ = InferExtension("", []byte{0x00, 0x01, 0x02}, "jpg")
	assert.Equal(t, "jpg", ext)

	ext, _ = InferExtension("audio/mpeg", nil, "jpg")
	assert.Equal(t, "mp3", ext)
}

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.png")
	require.NoError(t, writeAtomic(path, []byte("data")))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "data", string(got))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}
