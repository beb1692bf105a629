package intake

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/bryanwahyu/checkflow/internal/domain/capture"
	"github.com/bryanwahyu/checkflow/internal/domain/checks"
	"github.com/bryanwahyu/checkflow/internal/metrics"
)

// Sink receives built records and event failures.
type Sink interface {
	Insert(ctx context.Context, c *checks.Check) error
	RecordFailure(ctx context.Context, err error)
}

// Worker drains the ingest channel. Extraction for different events runs
// in parallel up to the pool size; each event's failure stays scoped to
// that event.
type Worker struct {
	extractor *Extractor
	sink      Sink
	limit     int
	log       logrus.FieldLogger
	metrics   *metrics.Metrics
}

func NewWorker(x *Extractor, sink Sink, workers int, log logrus.FieldLogger, m *metrics.Metrics) (*Worker, error) {
	if x == nil || sink == nil {
		return nil, errors.New("extractor and sink are required")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Worker{extractor: x, sink: sink, limit: PoolSize(workers), log: log, metrics: m}, nil
}

// Run processes events until inbox is closed or ctx is done, then waits
// for in-flight events.
func (w *Worker) Run(ctx context.Context, inbox <-chan capture.Event) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.limit)

	w.log.WithField("workers", w.limit).Info("intake worker started")
	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			return ctx.Err()
		case ev, ok := <-inbox:
			if !ok {
				return g.Wait()
			}
			g.Go(func() error {
				_, _ = w.Handle(gctx, ev)
				return nil
			})
		}
	}
}

// Handle extracts one event and inserts the resulting record.
func (w *Worker) Handle(ctx context.Context, ev capture.Event) (*checks.Check, error) {
	c, err := w.extractor.Process(ctx, ev)
	if err != nil {
		w.fail(ctx, err)
		return nil, err
	}
	if err := w.sink.Insert(ctx, c); err != nil {
		w.fail(ctx, err)
		return nil, err
	}
	w.metrics.IncIngested()
	return c, nil
}

func (w *Worker) fail(ctx context.Context, err error) {
	kind := "insert"
	var ie *checks.IngestError
	var ee *checks.ExtractionError
	switch {
	case errors.As(err, &ie):
		kind = "ingest"
	case errors.As(err, &ee):
		kind = "extraction"
	}
	w.metrics.IncCaptureFailed(kind)
	w.log.WithFields(logrus.Fields{"kind": kind, "error": err}).Error("capture event failed")
	w.sink.RecordFailure(ctx, err)
}
