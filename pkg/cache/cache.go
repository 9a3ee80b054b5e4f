// Package cache defines the per-label content cache used by the enrichment engine.
package cache

import "github.com/dravya-labs/dravya/pkg/models"

// Store holds at most one text and one image per label. Text and image
// entries are independent. Implementations must be safe for concurrent use.
type Store interface {
	Text(label string) (string, bool)
	PutText(label, text string)
	Image(label string) ([]byte, bool)
	PutImage(label string, img []byte)
	Stats() models.CacheStats
}
