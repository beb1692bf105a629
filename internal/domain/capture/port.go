package capture

import "context"

// TextExtractor turns an image into raw text (OCR).
type TextExtractor interface {
	ExtractText(ctx context.Context, image []byte) (string, error)
}

// Feature names one security probe.
type Feature string

const (
	FeatureWatermark Feature = "watermark"
	FeatureMicrotext Feature = "microtext"
	FeatureUV        Feature = "uv"
)

// SecurityFeatureDetector probes a decoded image for one feature.
type SecurityFeatureDetector interface {
	Feature() Feature
	Detect(ctx context.Context, image []byte) (bool, error)
}

// ImageStore persists decoded image bytes and returns a content reference.
type ImageStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}
