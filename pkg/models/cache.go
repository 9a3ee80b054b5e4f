package models

// CacheStats reports content cache metrics.
type CacheStats struct {
	Labels     int   `json:"labels"`
	Texts      int   `json:"texts"`
	Images     int   `json:"images"`
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	ImageBytes int64 `json:"image_bytes"`
}
