package sensor

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/protocol"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/service"
)

// DefaultPollInterval bounds how long one Poll waits for input, and so
// how quickly the loop notices a stop signal.
const DefaultPollInterval = 100 * time.Millisecond

// Handler turns one raw line into a reply. *service.CommandHandler
// satisfies it.
type Handler interface {
	Handle(ctx context.Context, line string) (service.Response, bool)
}

type Listener struct {
	transport Transport
	handler   Handler
	poll      time.Duration
	log       logrus.FieldLogger

	// OnResponse, when set, sees every handled frame after the reply is
	// sent. The CLI uses it for verbose output.
	OnResponse func(service.Response)
}

func NewListener(t Transport, h Handler, poll time.Duration, logger logrus.FieldLogger) *Listener {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Listener{transport: t, handler: h, poll: poll, log: logger.WithField("component", "listener")}
}

// Run serves frames one at a time until ctx is cancelled or the link
// closes. A frame that has started processing always finishes and gets
// its reply. Run closes the transport before returning.
func (l *Listener) Run(ctx context.Context) error {
	defer l.transport.Close()
	l.log.WithField("poll_interval", l.poll.String()).Info("listening for sensor frames")

	for {
		if ctx.Err() != nil {
			l.log.Info("listener stopping")
			return nil
		}

		line, ok, err := l.transport.Poll(ctx, l.poll)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, ErrLineTooLong) {
				l.log.WithError(err).Warn("discarding oversized frame")
				if err := l.transport.Send(protocol.Reply(false)); err != nil {
					l.log.WithError(err).Error("reply not sent")
				}
				continue
			}
			l.log.WithError(err).Error("sensor link lost")
			return err
		}
		if !ok {
			continue
		}

		l.serve(context.WithoutCancel(ctx), line)
	}
}

func (l *Listener) serve(ctx context.Context, line string) {
	defer func() {
		if r := recover(); r != nil {
			l.log.WithField("panic", r).Error("frame handler panicked")
		}
	}()

	resp, ok := l.handler.Handle(ctx, line)
	if !ok {
		return
	}
	if err := l.transport.Send(resp.Reply); err != nil {
		l.log.WithError(err).WithField("label", resp.Label).Error("reply not sent")
	} else {
		l.log.WithField("label", resp.Label).Debug("reply sent")
	}
	if l.OnResponse != nil {
		l.OnResponse(resp)
	}
}
