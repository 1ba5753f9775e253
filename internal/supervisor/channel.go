package supervisor

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"sync"
)

var errChannelClosed = errors.New("command channel closed")

// Channel is the write side of a worker's standard input.
type Channel struct {
	mu     sync.Mutex
	c      io.WriteCloser
	w      *bufio.Writer
	closed bool
}

func newChannel(c io.WriteCloser) *Channel {
	return &Channel{c: c, w: bufio.NewWriter(c)}
}

// WriteLine writes text followed by a newline and flushes.
func (ch *Channel) WriteLine(text string) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return errChannelClosed
	}
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	if _, err := ch.w.WriteString(text); err != nil {
		return err
	}
	return ch.w.Flush()
}

// Close closes the worker's stdin. It is safe to call more than once.
func (ch *Channel) Close() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return nil
	}
	ch.closed = true
	return ch.c.Close()
}
