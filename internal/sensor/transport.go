// Package sensor talks to the fingerprint reader over a line-oriented
// serial link and feeds each frame through the command handler.
package sensor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

var (
	// ErrClosed is returned by Poll once the link is gone.
	ErrClosed          = errors.New("sensor transport closed")
	ErrUnsupportedBaud = errors.New("unsupported baud rate")
	// ErrLineTooLong is returned by Poll for a line longer than
	// maxLineBytes. The line has been discarded and the link is still up.
	ErrLineTooLong = errors.New("sensor line too long")
)

// maxLineBytes bounds one frame. Real templates are a few KiB of base64.
const maxLineBytes = 64 * 1024

// Transport is the half-duplex link to one sensor.
type Transport interface {
	// Poll waits up to wait for one complete line. ok is false when
	// nothing arrived in time. ErrLineTooLong is not fatal.
	Poll(ctx context.Context, wait time.Duration) (line string, ok bool, err error)
	// Send writes s exactly as given.
	Send(s string) error
	Close() error
}

// LineTransport buffers newline-terminated lines read from rwc by a
// background goroutine.
type LineTransport struct {
	rwc   io.ReadWriteCloser
	lines chan frame
	done  chan struct{}
	err   error // set before done is closed

	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
	closing   chan struct{}
}

func NewLineTransport(rwc io.ReadWriteCloser) *LineTransport {
	t := &LineTransport{
		rwc:     rwc,
		lines:   make(chan frame, 64),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}
	go t.read()
	return t
}

type frame struct {
	line    string
	tooLong bool
}

func (t *LineTransport) read() {
	defer close(t.done)

	r := bufio.NewReaderSize(t.rwc, 4096)
	var (
		buf     []byte
		tooLong bool
	)
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			if len(buf)+len(chunk) > maxLineBytes {
				tooLong, buf = true, buf[:0]
			} else {
				buf = append(buf, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		// A final line without a newline still counts at EOF.
		if err == nil || (errors.Is(err, io.EOF) && (len(buf) > 0 || tooLong)) {
			f := frame{tooLong: tooLong}
			if !tooLong {
				f.line = strings.TrimRight(string(buf), "\r\n")
			}
			buf, tooLong = buf[:0], false
			select {
			case t.lines <- f:
			case <-t.closing:
				t.err = ErrClosed
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				t.err = ErrClosed
			} else {
				t.err = fmt.Errorf("%w: %w", ErrClosed, err)
			}
			return
		}
	}
}

func (t *LineTransport) Poll(ctx context.Context, wait time.Duration) (string, bool, error) {
	// Drain buffered lines before reporting a dead link.
	select {
	case f := <-t.lines:
		return f.result()
	default:
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case f := <-t.lines:
		return f.result()
	case <-t.done:
		select {
		case f := <-t.lines:
			return f.result()
		default:
		}
		return "", false, t.err
	case <-timer.C:
		return "", false, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}

func (f frame) result() (string, bool, error) {
	if f.tooLong {
		return "", false, fmt.Errorf("%w: over %d bytes", ErrLineTooLong, maxLineBytes)
	}
	return f.line, true, nil
}

func (t *LineTransport) Send(s string) error {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	if _, err := io.WriteString(t.rwc, s); err != nil {
		return fmt.Errorf("sensor write: %w", err)
	}
	return nil
}

func (t *LineTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closing)
		t.closeErr = t.rwc.Close()
	})
	return t.closeErr
}
