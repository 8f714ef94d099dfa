package types

// OCRRequest is the body of POST /ocr
type OCRRequest struct {
	// Image is base64-encoded image data (PNG, JPEG, ...). A data URL prefix is tolerated.
	Image *string `json:"image"`
}

// OCRResponse is returned on success
type OCRResponse struct {
	Latex string `json:"latex"`
}

// ErrorResponse is returned with HTTP 500 for every failure
type ErrorResponse struct {
	Error string `json:"error"`
}

// InferenceRequest is sent to a model server sidecar
type InferenceRequest struct {
	Prompt   string `json:"prompt,omitempty"`
	ImageB64 string `json:"image_base64"`
	Format   string `json:"format,omitempty"`
}

// InferenceResponse is what a model server sidecar answers
type InferenceResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}
