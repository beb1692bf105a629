package scanner

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/checkflow/internal/domain/capture"
)

const defaultReconnect = 3 * time.Second

// FailureReporter receives events that could not be decoded.
type FailureReporter interface {
	RecordFailure(ctx context.Context, err error)
}

// Feed reads capture events from the scanner websocket and forwards them
// to the ingest channel, reconnecting after the connection drops.
type Feed struct {
	url       string
	dialer    *websocket.Dialer
	reconnect time.Duration
	log       logrus.FieldLogger
	failures  FailureReporter
}

type Option func(*options)

type options struct {
	dialer    *websocket.Dialer
	reconnect time.Duration
	log       logrus.FieldLogger
	failures  FailureReporter
}

func WithDialer(d *websocket.Dialer) Option { return func(o *options) { o.dialer = d } }

// WithReconnect sets the pause between connection attempts.
func WithReconnect(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.reconnect = d
		}
	}
}

func WithLogger(l logrus.FieldLogger) Option { return func(o *options) { o.log = l } }

func WithFailureReporter(r FailureReporter) Option { return func(o *options) { o.failures = r } }

func buildOptions(opts []Option) options {
	o := options{
		dialer:    websocket.DefaultDialer,
		reconnect: defaultReconnect,
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func NewFeed(url string, opts ...Option) *Feed {
	o := buildOptions(opts)
	return &Feed{
		url:       url,
		dialer:    o.dialer,
		reconnect: o.reconnect,
		log:       o.log.WithField("component", "scanner_feed"),
		failures:  o.failures,
	}
}

// Run forwards events to out until ctx is done.
func (f *Feed) Run(ctx context.Context, out chan<- capture.Event) error {
	for {
		err := f.session(ctx, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.log.WithFields(logrus.Fields{"error": err, "retry_in": f.reconnect}).Warn("scanner feed disconnected")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.reconnect):
		}
	}
}

func (f *Feed) session(ctx context.Context, out chan<- capture.Event) error {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	f.log.WithField("url", f.url).Info("connected to scanner feed")
	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		ev, err := capture.DecodeEvent(msg)
		if err != nil {
			f.log.WithField("error", err).Warn("dropping malformed scanner message")
			if f.failures != nil {
				f.failures.RecordFailure(ctx, err)
			}
			continue
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
