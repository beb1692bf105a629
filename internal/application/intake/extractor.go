package intake

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/bryanwahyu/checkflow/internal/application"
	"github.com/bryanwahyu/checkflow/internal/domain/capture"
	"github.com/bryanwahyu/checkflow/internal/domain/checks"
	"github.com/bryanwahyu/checkflow/internal/metrics"
)

// Fallback dimensions for images whose format cannot be decoded.
const (
	defaultWidth  = 400
	defaultHeight = 150
)

const dataURLPrefix = "data:image/jpeg;base64,"

// Extractor turns a capture event into a pending check record.
type Extractor struct {
	ocr       capture.TextExtractor
	images    capture.ImageStore
	detectors []capture.SecurityFeatureDetector
	clock     application.Clock
	log       logrus.FieldLogger
	metrics   *metrics.Metrics
	ocrSlots  *semaphore.Weighted
	newID     func() string
}

type ExtractorOption func(*Extractor)

// WithTextExtractor enables the OCR tier.
func WithTextExtractor(t capture.TextExtractor) ExtractorOption {
	return func(x *Extractor) { x.ocr = t }
}

// WithImageStore stores image bytes instead of inlining them as data URLs.
func WithImageStore(s capture.ImageStore) ExtractorOption {
	return func(x *Extractor) { x.images = s }
}

func WithDetectors(d ...capture.SecurityFeatureDetector) ExtractorOption {
	return func(x *Extractor) { x.detectors = d }
}

func WithExtractorClock(c application.Clock) ExtractorOption {
	return func(x *Extractor) { x.clock = c }
}

func WithExtractorLogger(l logrus.FieldLogger) ExtractorOption {
	return func(x *Extractor) { x.log = l }
}

func WithExtractorMetrics(m *metrics.Metrics) ExtractorOption {
	return func(x *Extractor) { x.metrics = m }
}

// WithOCRSessions bounds the number of concurrent OCR sessions.
func WithOCRSessions(n int) ExtractorOption {
	return func(x *Extractor) { x.ocrSlots = semaphore.NewWeighted(int64(PoolSize(n))) }
}

func withIDs(fn func() string) ExtractorOption {
	return func(x *Extractor) { x.newID = fn }
}

func NewExtractor(opts ...ExtractorOption) *Extractor {
	x := &Extractor{
		detectors: DefaultDetectors(),
		clock:     application.SystemClock{},
		log:       logrus.StandardLogger(),
		newID:     func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(x)
	}
	if x.ocrSlots == nil {
		x.ocrSlots = semaphore.NewWeighted(int64(PoolSize(0)))
	}
	return x
}

// PoolSize caps n at the number of CPUs; n <= 0 means one per CPU.
func PoolSize(n int) int {
	cpus := runtime.NumCPU()
	if n <= 0 || n > cpus {
		return cpus
	}
	return n
}

type admitted struct {
	image checks.Image
	data  []byte
}

// Process runs one capture event through admission, both extraction
// tiers, placeholder substitution, security probes and the builder.
func (x *Extractor) Process(ctx context.Context, ev capture.Event) (*checks.Check, error) {
	start := time.Now()
	defer func() { x.metrics.ObserveExtract(time.Since(start)) }()

	now := x.clock.Now()
	images, err := x.admit(ctx, ev, now)
	if err != nil {
		return nil, err
	}
	primary := images[0]
	for _, im := range images {
		if im.image.Type == checks.ImageRecto {
			primary = im
			break
		}
	}

	fields := capture.FromDevice(ev)
	if missing := fields.Missing(); len(missing) > 0 && x.ocr != nil {
		text, err := x.recognize(ctx, primary.data)
		if err != nil {
			return nil, &checks.ExtractionError{Stage: "ocr", Err: err}
		}
		fields.FromText(text)
	}
	defaulted := fields.ApplyPlaceholders(now)

	out := make([]checks.Image, 0, len(images))
	for _, im := range images {
		out = append(out, im.image)
	}
	c := Build(checks.CheckID(x.newID()), fields, defaulted, out, x.probe(ctx, primary.data), now)

	for _, f := range defaulted {
		x.metrics.IncPlaceholder(f)
	}
	for _, a := range c.Anomalies {
		x.metrics.IncAnomaly(string(a.Type), string(a.Severity))
	}
	x.log.WithFields(logrus.Fields{
		"id":        c.ID,
		"images":    len(c.Images),
		"defaulted": defaulted,
		"sources":   fields.Sources,
	}).Debug("capture extracted")
	return c, nil
}

// admit keeps the slots whose payload is valid base64. Zero survivors
// abort the event.
func (x *Extractor) admit(ctx context.Context, ev capture.Event, now time.Time) ([]admitted, error) {
	var out []admitted
	for _, slot := range ev.Slots() {
		data, ok := decodeImage(slot.Payload)
		if !ok {
			if slot.Payload != "" {
				x.log.WithField("slot", slot.Type).Warn("dropping image with invalid base64 payload")
				x.metrics.IncImageDropped()
			}
			continue
		}
		img := checks.Image{
			ID:        x.newID(),
			Type:      slot.Type,
			Width:     defaultWidth,
			Height:    defaultHeight,
			CreatedAt: now,
		}
		if decoded, err := imaging.Decode(bytes.NewReader(data)); err == nil {
			b := decoded.Bounds()
			img.Width, img.Height = b.Dx(), b.Dy()
		}
		img.ContentRef = x.contentRef(ctx, slot, data, now)
		out = append(out, admitted{image: img, data: data})
	}
	if len(out) == 0 {
		return nil, &checks.IngestError{Reason: "zero valid images", Err: checks.ErrNoValidImages}
	}
	return out, nil
}

func decodeImage(payload string) ([]byte, bool) {
	payload = strings.TrimSpace(payload)
	if i := strings.Index(payload, ";base64,"); strings.HasPrefix(payload, "data:") && i >= 0 {
		payload = payload[i+len(";base64,"):]
	}
	if payload == "" {
		return nil, false
	}
	if data, err := base64.StdEncoding.DecodeString(payload); err == nil {
		return data, true
	}
	if data, err := base64.RawStdEncoding.DecodeString(payload); err == nil {
		return data, true
	}
	return nil, false
}

// contentRef stores the bytes under a content-hash key. Without a store,
// or when the upload fails, the image is inlined as a data URL.
func (x *Extractor) contentRef(ctx context.Context, slot capture.Slot, data []byte, now time.Time) string {
	inline := dataURLPrefix + base64.StdEncoding.EncodeToString(data)
	if x.images == nil {
		return inline
	}
	key := fmt.Sprintf("checks/%s/%016x-%s.jpg", now.Format("2006/01/02"), xxhash.Sum64(data), slot.Type)
	ref, err := x.images.Put(ctx, key, data, "image/jpeg")
	if err != nil {
		x.log.WithFields(logrus.Fields{"key": key, "error": err}).Warn("image upload failed, inlining content")
		return inline
	}
	return ref
}

// recognize runs OCR inside the bounded session pool.
func (x *Extractor) recognize(ctx context.Context, data []byte) (string, error) {
	if err := x.ocrSlots.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer x.ocrSlots.Release(1)

	defer x.metrics.OCRStarted()()
	return x.ocr.ExtractText(ctx, data)
}

// probe runs every detector; a failing detector reports the feature absent.
func (x *Extractor) probe(ctx context.Context, data []byte) checks.SecurityFeatures {
	var sf checks.SecurityFeatures
	for _, d := range x.detectors {
		ok, err := d.Detect(ctx, data)
		if err != nil {
			x.log.WithFields(logrus.Fields{"feature": d.Feature(), "error": err}).Warn("security probe failed")
			continue
		}
		switch d.Feature() {
		case capture.FeatureWatermark:
			sf.HasWatermark = ok
		case capture.FeatureMicrotext:
			sf.HasMicrotext = ok
		case capture.FeatureUV:
			sf.HasUVFeatures = ok
		}
	}
	return sf
}
