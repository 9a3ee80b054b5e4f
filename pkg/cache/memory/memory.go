// Package memory is the process-lifetime content cache. It never evicts,
// expires or persists entries.
package memory

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dravya-labs/dravya/pkg/models"
)

// Store is an in-memory cache.Store.
type Store struct {
	mu     sync.RWMutex
	texts  map[string]string
	images map[string][]byte
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		texts:  make(map[string]string),
		images: make(map[string][]byte),
	}
}

// Text returns the cached description for label.
func (s *Store) Text(label string) (string, bool) {
	s.mu.RLock()
	text, ok := s.texts[label]
	s.mu.RUnlock()
	s.count(ok)
	return text, ok
}

// PutText stores a description. Empty text is ignored. Last write wins.
func (s *Store) PutText(label, text string) {
	if text == "" {
		return
	}
	s.mu.Lock()
	s.texts[label] = text
	s.mu.Unlock()
}

// Image returns a copy of the cached image for label.
func (s *Store) Image(label string) ([]byte, bool) {
	s.mu.RLock()
	img, ok := s.images[label]
	s.mu.RUnlock()
	s.count(ok)
	if !ok {
		return nil, false
	}
	return append([]byte(nil), img...), true
}

// PutImage stores a copy of img. Empty images are ignored. Last write wins.
func (s *Store) PutImage(label string, img []byte) {
	if len(img) == 0 {
		return
	}
	cp := append([]byte(nil), img...)
	s.mu.Lock()
	s.images[label] = cp
	s.mu.Unlock()
}

func (s *Store) count(hit bool) {
	if hit {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
	}
}

// Labels returns the sorted labels that have any cached artifact.
func (s *Store) Labels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{}, len(s.texts)+len(s.images))
	for l := range s.texts {
		seen[l] = struct{}{}
	}
	for l := range s.images {
		seen[l] = struct{}{}
	}
	labels := make([]string, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// Stats returns cache metrics.
func (s *Store) Stats() models.CacheStats {
	s.mu.RLock()
	var size int64
	for _, img := range s.images {
		size += int64(len(img))
	}
	stats := models.CacheStats{
		Texts:      len(s.texts),
		Images:     len(s.images),
		ImageBytes: size,
	}
	s.mu.RUnlock()

	stats.Labels = len(s.Labels())
	stats.Hits = s.hits.Load()
	stats.Misses = s.misses.Load()
	return stats
}

// Clear removes all entries and resets counters.
func (s *Store) Clear() {
	s.mu.Lock()
	s.texts = make(map[string]string)
	s.images = make(map[string][]byte)
	s.mu.Unlock()
	s.hits.Store(0)
	s.misses.Store(0)
}
