package domain

// ImageRef points the vision backend at an object in storage; no bytes are
// downloaded by the worker on the image path.
type ImageRef struct {
	Bucket string
	Key    string
}

type Label struct {
	Name       string
	Confidence float32
}

type ModerationLabel struct {
	Name       string
	ParentName string
	Confidence float32
}

type TextDetectionType string

const (
	TextDetectionLine TextDetectionType = "LINE"
	TextDetectionWord TextDetectionType = "WORD"
)

type TextDetection struct {
	Text       string
	Type       TextDetectionType
	Confidence float32
}

// GenerationParams are the sampling settings for one model invocation.
type GenerationParams struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
}
