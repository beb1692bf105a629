package intake

import (
	"time"

	"github.com/bryanwahyu/checkflow/internal/domain/capture"
	"github.com/bryanwahyu/checkflow/internal/domain/checks"
)

// Build composes a pending record from extracted fields and admitted
// images, then records validation and placeholder anomalies on it.
func Build(id checks.CheckID, f capture.Fields, defaulted []string, images []checks.Image, features checks.SecurityFeatures, now time.Time) *checks.Check {
	c := &checks.Check{
		ID:               id,
		SecurityFeatures: features,
		Images:           images,
		Status:           checks.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	f.Apply(c)

	anomalies := checks.Validate(c)
	for _, field := range defaulted {
		anomalies = append(anomalies, checks.DefaultedField(field))
	}
	if anomalies == nil {
		anomalies = []checks.Anomaly{}
	}
	c.Anomalies = anomalies
	return c
}
