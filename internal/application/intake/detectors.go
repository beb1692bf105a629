package intake

import (
	"context"

	"github.com/bryanwahyu/checkflow/internal/domain/capture"
)

// The detectors below report the feature as absent until image analysis
// for each feature exists.

type WatermarkDetector struct{}

func (WatermarkDetector) Feature() capture.Feature { return capture.FeatureWatermark }

func (WatermarkDetector) Detect(context.Context, []byte) (bool, error) { return false, nil }

type MicrotextDetector struct{}

func (MicrotextDetector) Feature() capture.Feature { return capture.FeatureMicrotext }

func (MicrotextDetector) Detect(context.Context, []byte) (bool, error) { return false, nil }

type UVDetector struct{}

func (UVDetector) Feature() capture.Feature { return capture.FeatureUV }

func (UVDetector) Detect(context.Context, []byte) (bool, error) { return false, nil }

// DefaultDetectors returns one detector per feature.
func DefaultDetectors() []capture.SecurityFeatureDetector {
	return []capture.SecurityFeatureDetector{WatermarkDetector{}, MicrotextDetector{}, UVDetector{}}
}
