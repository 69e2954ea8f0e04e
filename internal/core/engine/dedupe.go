package engine

import (
	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultDedupeSize = 256

// Deduper remembers the digests of artifacts already captured in a job so a
// stale result still on screen is not written twice.
type Deduper struct {
	seen *lru.Cache[uint64, string]
}

func NewDeduper(size int) *Deduper {
	if size <= 0 {
		size = defaultDedupeSize
	}
	cache, _ := lru.New[uint64, string](size)
	return &Deduper{seen: cache}
}

func Digest(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// Seen reports the path a digest was previously written to.
func (d *Deduper) Seen(digest uint64) (string, bool) {
	return d.seen.Get(digest)
}

func (d *Deduper) Remember(digest uint64, path string) {
	d.seen.Add(digest, path)
}

// SeenSource reports whether an artifact was already taken from source.
func (d *Deduper) SeenSource(source string) bool {
	_, ok := d.seen.Get(sourceKey(source))
	return ok
}

func (d *Deduper) RememberSource(source, path string) {
	if source != "" {
		d.seen.Add(sourceKey(source), path)
	}
}

func sourceKey(source string) uint64 {
	return xxhash.Sum64String("src\x00" + source)
}
