package models

// IdentifyResponse is the result of one identification.
type IdentifyResponse struct {
	Dravya      string  `json:"dravya"`
	Description string  `json:"description"`
	ImageBase64 *string `json:"image_base64"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status      string   `json:"status"`
	ModelLoaded bool     `json:"model_loaded"`
	Classes     []string `json:"classes"`
}

// DebugImageResponse summarises a direct, uncached image generation.
type DebugImageResponse struct {
	Dravya      string  `json:"dravya"`
	HaveImage   bool    `json:"have_image"`
	Length      int     `json:"length"`
	SampleStart *string `json:"sample_start"`
}
