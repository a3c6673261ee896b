package service

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

const (
	// dedupMaxEntries is the retention ceiling for exchange hashes
	dedupMaxEntries = 1000
	// dedupKeepEntries is how many of the newest hashes survive a trim
	dedupKeepEntries = 500
)

// Deduper tracks recently seen (query, response) exchanges by SHA-256 hash.
// When the set exceeds its ceiling it is truncated to the newest half; this
// is a coarse tail-keep, not strict LRU.
type Deduper struct {
	mu     sync.Mutex
	order  []string
	hashes map[string]struct{}
}

// NewDeduper creates an empty Deduper.
func NewDeduper() *Deduper {
	return &Deduper{hashes: make(map[string]struct{})}
}

// IsDuplicate reports whether the exchange was seen within the retention
// window, recording it as seen either way.
func (d *Deduper) IsDuplicate(query, response string) bool {
	digest := sha256.Sum256([]byte(query + response))
	key := hex.EncodeToString(digest[:])

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.hashes[key]; ok {
		return true
	}

	d.hashes[key] = struct{}{}
	d.order = append(d.order, key)

	if len(d.order) > dedupMaxEntries {
		evict := d.order[:len(d.order)-dedupKeepEntries]
		for _, old := range evict {
			delete(d.hashes, old)
		}
		kept := make([]string, dedupKeepEntries)
		copy(kept, d.order[len(d.order)-dedupKeepEntries:])
		d.order = kept
	}
	return false
}

// Len returns the current number of retained hashes.
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.order)
}
