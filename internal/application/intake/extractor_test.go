package intake

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/color"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/bryanwahyu/checkflow/internal/application"
	"github.com/bryanwahyu/checkflow/internal/domain/capture"
	"github.com/bryanwahyu/checkflow/internal/domain/checks"
)

type ocrMock struct {
	mock.Mock
}

func (m *ocrMock) ExtractText(ctx context.Context, image []byte) (string, error) {
	args := m.Called(ctx, image)
	return args.String(0), args.Error(1)
}

type imageStoreMock struct {
	mock.Mock
}

func (m *imageStoreMock) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	args := m.Called(ctx, key, data, contentType)
	return args.String(0), args.Error(1)
}

// gatedOCR blocks every call until release is closed and tracks the
// highest number of calls seen at once.
type gatedOCR struct {
	release  chan struct{}
	inFlight atomic.Int64
	peak     atomic.Int64
	calls    atomic.Int64
}

func (g *gatedOCR) ExtractText(ctx context.Context, _ []byte) (string, error) {
	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	g.calls.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	select {
	case <-g.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return "N° 7654321", nil
}

type uvAlways struct{}

func (uvAlways) Feature() capture.Feature                      { return capture.FeatureUV }
func (uvAlways) Detect(context.Context, []byte) (bool, error) { return true, nil }

type sinkFake struct {
	mu       sync.Mutex
	inserted []*checks.Check
	failures []error
}

func (s *sinkFake) Insert(_ context.Context, c *checks.Check) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, c)
	return nil
}

func (s *sinkFake) RecordFailure(_ context.Context, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, err)
}

func pngBase64(w, h int) string {
	img := imaging.New(w, h, color.NRGBA{R: 200, G: 200, B: 200, A: 255})
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		panic(err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

type ExtractorSuite struct {
	suite.Suite
	ctx   context.Context
	clock *application.FixedClock
	img   string
	ids   atomic.Int64
}

func TestExtractorSuite(t *testing.T) {
	suite.Run(t, new(ExtractorSuite))
}

func (s *ExtractorSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = &application.FixedClock{T: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
	s.img = pngBase64(8, 4)
	s.ids.Store(0)
}

func (s *ExtractorSuite) extractor(opts ...ExtractorOption) *Extractor {
	logger, _ := test.NewNullLogger()
	base := []ExtractorOption{
		WithExtractorClock(s.clock),
		WithExtractorLogger(logger),
		withIDs(func() string {
			return fmt.Sprintf("id-%d", s.ids.Add(1))
		}),
	}
	return NewExtractor(append(base, opts...)...)
}

func (s *ExtractorSuite) deviceEvent() capture.Event {
	return capture.Event{
		Image1:       s.img,
		Image2:       s.img,
		Image3:       s.img,
		ChequeNumber: "1234567",
		Amount:       "123,45EUR",
		CMC7:         "CMC7-00700100000000000000001",
	}
}

func (s *ExtractorSuite) TestImageAdmission() {
	x := s.extractor()

	s.Run("three valid images", func() {
		c, err := x.Process(s.ctx, s.deviceEvent())
		s.Require().NoError(err)
		s.Require().Len(c.Images, 3)
		s.Equal(checks.StatusPending, c.Status)
		s.Equal(checks.ImageRecto, c.Images[0].Type)
		s.Equal(checks.ImageVerso, c.Images[1].Type)
		s.Equal(checks.ImageUV, c.Images[2].Type)
		s.Equal(8, c.Images[0].Width)
		s.Equal(4, c.Images[0].Height)
		s.True(strings.HasPrefix(c.Images[0].ContentRef, "data:image/jpeg;base64,"))
		s.Equal(s.clock.T, c.CreatedAt)
		s.Equal(c.CreatedAt, c.UpdatedAt)
	})

	s.Run("one invalid slot is dropped", func() {
		ev := s.deviceEvent()
		ev.Image2 = "%%% not base64 %%%"
		c, err := x.Process(s.ctx, ev)
		s.Require().NoError(err)
		s.Require().Len(c.Images, 2)
		s.Equal(checks.ImageRecto, c.Images[0].Type)
		s.Equal(checks.ImageUV, c.Images[1].Type)
	})

	s.Run("undecodable image keeps default dimensions", func() {
		ev := s.deviceEvent()
		ev.Image1 = base64.StdEncoding.EncodeToString([]byte("raw scanner bytes"))
		c, err := x.Process(s.ctx, ev)
		s.Require().NoError(err)
		s.Equal(400, c.Images[0].Width)
		s.Equal(150, c.Images[0].Height)
	})

	s.Run("zero valid images aborts the event", func() {
		ev := s.deviceEvent()
		ev.Image1, ev.Image2, ev.Image3 = "", "???", "@@@"
		c, err := x.Process(s.ctx, ev)
		s.Nil(c)
		s.Require().Error(err)
		s.ErrorIs(err, checks.ErrNoValidImages)

		var ie *checks.IngestError
		s.ErrorAs(err, &ie)
	})
}

func (s *ExtractorSuite) TestDeviceTier() {
	c, err := s.extractor().Process(s.ctx, s.deviceEvent())
	s.Require().NoError(err)

	s.Equal("1234567", c.CheckNumber)
	s.Equal("123.45", c.Amount.String())
	s.Equal("00700", c.BankDetails.BankCode)
	s.Equal("10000", c.BankDetails.BranchCode)
	s.Equal("00000000000", c.BankDetails.AccountNumber)
	s.Equal("01", c.BankDetails.RIBKey)
	s.Equal("EUR", c.Currency)
	s.Equal(s.clock.T, c.Date)

	// CMC7 slices are kept verbatim even though they fail the format checks
	var formats int
	for _, a := range c.Anomalies {
		if a.Type == checks.AnomalyFormat {
			formats++
		}
	}
	s.Equal(3, formats)
}

func (s *ExtractorSuite) TestOCRTier() {
	ocr := new(ocrMock)
	ocr.On("ExtractText", mock.Anything, mock.Anything).Return(
		"N° 7654321\nPayez à Marie Curie\nCent cinquante EUR\nEUR 150,00\n"+
			"Code banque 300 Code guichet 401\nCompte 1234567890123456 Clé RIB 77", nil)

	ev := capture.Event{Image1: s.img}
	c, err := s.extractor(WithTextExtractor(ocr)).Process(s.ctx, ev)
	s.Require().NoError(err)

	s.Equal("7654321", c.CheckNumber)
	s.Equal("150", c.Amount.String())
	s.Equal("Cent cinquante", c.AmountInWords)
	s.Equal("Marie Curie", c.Payee.Name)
	s.Equal("300", c.BankDetails.BankCode)
	s.Equal("401", c.BankDetails.BranchCode)
	s.Equal("1234567890123456", c.BankDetails.AccountNumber)
	s.Equal("77", c.BankDetails.RIBKey)
	s.Empty(c.Anomalies)
	ocr.AssertNumberOfCalls(s.T(), "ExtractText", 1)
}

func (s *ExtractorSuite) TestOCRFailureAbortsEvent() {
	ocr := new(ocrMock)
	ocr.On("ExtractText", mock.Anything, mock.Anything).Return("", errors.New("engine crashed"))

	c, err := s.extractor(WithTextExtractor(ocr)).Process(s.ctx, capture.Event{Image1: s.img})
	s.Nil(c)
	var ee *checks.ExtractionError
	s.Require().ErrorAs(err, &ee)
	s.Equal("ocr", ee.Stage)
}

func (s *ExtractorSuite) TestPlaceholders() {
	c, err := s.extractor().Process(s.ctx, capture.Event{Image1: s.img})
	s.Require().NoError(err)

	s.Equal("000000000", c.CheckNumber)
	s.True(c.Amount.IsZero())
	s.Equal("Zéro", c.AmountInWords)
	s.Equal("Unknown", c.Payee.Name)
	s.Equal("0000000000000000", c.BankDetails.AccountNumber)

	var other int
	for _, a := range c.Anomalies {
		if a.Type == checks.AnomalyOther {
			s.Equal(checks.SeverityLow, a.Severity)
			other++
		}
	}
	s.Equal(8, other)

	dom, ok := checks.DominantAnomaly(c.Anomalies)
	s.Require().True(ok)
	s.Equal(checks.SeverityHigh, dom.Severity)
	s.Equal(checks.AnomalyAmount, dom.Type)
}

func (s *ExtractorSuite) TestImageStoreAndDetectors() {
	store := new(imageStoreMock)
	store.On("Put", mock.Anything, mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "checks/2024/06/01/") && strings.HasSuffix(key, "-recto.jpg")
	}), mock.Anything, "image/jpeg").Return("http://minio/checks/recto.jpg", nil)
	store.On("Put", mock.Anything, mock.Anything, mock.Anything, "image/jpeg").Return("", errors.New("bucket gone"))

	x := s.extractor(WithImageStore(store), WithDetectors(WatermarkDetector{}, uvAlways{}))
	c, err := x.Process(s.ctx, capture.Event{Image1: s.img, Image2: s.img})
	s.Require().NoError(err)

	s.Equal("http://minio/checks/recto.jpg", c.Images[0].ContentRef)
	s.True(strings.HasPrefix(c.Images[1].ContentRef, "data:image/jpeg;base64,"))
	s.True(c.SecurityFeatures.HasUVFeatures)
	s.False(c.SecurityFeatures.HasWatermark)
	s.False(c.SecurityFeatures.HasMicrotext)
}

func (s *ExtractorSuite) TestWorkerRun() {
	sink := &sinkFake{}
	logger, _ := test.NewNullLogger()
	w, err := NewWorker(s.extractor(), sink, 2, logger, nil)
	s.Require().NoError(err)

	inbox := make(chan capture.Event)
	done := make(chan error, 1)
	go func() { done <- w.Run(s.ctx, inbox) }()

	for i := 0; i < 5; i++ {
		inbox <- s.deviceEvent()
	}
	inbox <- capture.Event{Image1: "###"}
	close(inbox)
	s.Require().NoError(<-done)

	s.Len(sink.inserted, 5)
	s.Require().Len(sink.failures, 1)
	s.ErrorIs(sink.failures[0], checks.ErrNoValidImages)

	seen := map[checks.CheckID]bool{}
	for _, c := range sink.inserted {
		s.False(seen[c.ID], "duplicate id %s", c.ID)
		seen[c.ID] = true
	}
}

func (s *ExtractorSuite) TestOCRSessionsAreBounded() {
	bound := PoolSize(2)
	ocr := &gatedOCR{release: make(chan struct{})}
	x := s.extractor(WithTextExtractor(ocr), WithOCRSessions(2))

	const events = 6
	var wg sync.WaitGroup
	for i := 0; i < events; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := x.Process(s.ctx, capture.Event{Image1: s.img})
			s.NoError(err)
		}()
	}

	s.Eventually(func() bool { return ocr.inFlight.Load() == int64(bound) }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	s.Equal(int64(bound), ocr.inFlight.Load())

	close(ocr.release)
	wg.Wait()
	s.Equal(int64(events), ocr.calls.Load())
	s.Equal(int64(bound), ocr.peak.Load())
}

func (s *ExtractorSuite) TestWorkerRespectsOCRBound() {
	ocr := &gatedOCR{release: make(chan struct{})}
	close(ocr.release)
	x := s.extractor(WithTextExtractor(ocr), WithOCRSessions(1))

	sink := &sinkFake{}
	logger, _ := test.NewNullLogger()
	w, err := NewWorker(x, sink, 0, logger, nil)
	s.Require().NoError(err)

	inbox := make(chan capture.Event)
	done := make(chan error, 1)
	go func() { done <- w.Run(s.ctx, inbox) }()
	for i := 0; i < 20; i++ {
		inbox <- capture.Event{Image1: s.img}
	}
	close(inbox)
	s.Require().NoError(<-done)

	s.Len(sink.inserted, 20)
	s.Equal(int64(20), ocr.calls.Load())
	s.Equal(int64(1), ocr.peak.Load())
}

func (s *ExtractorSuite) TestPoolSize() {
	s.Equal(1, PoolSize(1))
	s.LessOrEqual(PoolSize(1<<20), PoolSize(0))
	s.GreaterOrEqual(PoolSize(0), 1)
}
