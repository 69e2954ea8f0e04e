package engine

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const maxNameLen = 120

var unsafeRun = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// SanitizeID turns a caller-supplied id into a safe file name stem.
func SanitizeID(id string) string {
	s := unsafeRun.ReplaceAllString(id, "_")
	if len(s) > maxNameLen {
		s = s[:maxNameLen]
	}
	if s == "" || strings.Trim(s, "_") == "" {
		return "item"
	}
	return s
}

// ArtifactName is {sanitizedId}_{variant}.{ext}.
func ArtifactName(id string, variant int, ext string) string {
	return fmt.Sprintf("%s_%d.%s", SanitizeID(id), variant, strings.TrimPrefix(ext, "."))
}

var extByType = map[string]string{
	"image/png":   "png",
	"image/webp":  "webp",
	"image/jpeg":  "jpg",
	"image/jpg":   "jpg",
	"image/gif":   "gif",
	"audio/mpeg":  "mp3",
	"audio/mp3":   "mp3",
	"audio/wav":   "wav",
	"audio/x-wav": "wav",
	"audio/wave":  "wav",
	"audio/ogg":   "ogg",
	"audio/webm":  "webm",
}

// BaseMediaType strips parameters and lower-cases a content type.
func BaseMediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
}

// InferExtension picks an extension from the content type, then from the
// bytes themselves, then falls back.
func InferExtension(contentType string, body []byte, fallback string) (ext string, mediaType string) {
	mt := BaseMediaType(contentType)
	if e, ok := extByType[mt]; ok {
		return e, mt
	}
	if len(body) > 0 {
		detected := mimetype.Detect(body)
		if e, ok := extByType[BaseMediaType(detected.String())]; ok {
			return e, BaseMediaType(detected.String())
		}
		if detected.Extension() != "" && !detected.Is("application/octet-stream") && !detected.Is("text/plain") {
			return strings.TrimPrefix(detected.Extension(), "."), BaseMediaType(detected.String())
		}
	}
	if mt == "" {
		mt = "application/octet-stream"
	}
	return strings.TrimPrefix(fallback, "."), mt
}

// writeAtomic writes data next to path and renames it into place so readers
// never observe a partial file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".capture-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return fmt.Errorf("chmod artifact: %w", err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("rename artifact: %w", err)
	}
	return nil
}
