package dap

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os/exec"
	"sync"

	godap "github.com/google/go-dap"
)

// Transport moves DAP messages to and from a debug adapter.
type Transport interface {
	// Send writes one message.
	Send(msg godap.Message) error

	// Receive reads one message. Messages the codec cannot decode are
	// returned as *DecodeError and the stream stays usable.
	Receive() (godap.Message, error)

	// Close closes the transport.
	Close() error
}

// StreamTransport implements Transport over any stream.
type StreamTransport struct {
	rwc    io.ReadWriteCloser
	reader *bufio.Reader
	mu     sync.Mutex
}

// NewStreamTransport creates a transport from any ReadWriteCloser.
func NewStreamTransport(rwc io.ReadWriteCloser) *StreamTransport {
	return &StreamTransport{
		rwc:    rwc,
		reader: bufio.NewReader(rwc),
	}
}

// DialTransport connects to an adapter listening on a TCP address.
func DialTransport(ctx context.Context, address string) (*StreamTransport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return NewStreamTransport(conn), nil
}

// Send writes one message.
func (t *StreamTransport) Send(msg godap.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := godap.WriteProtocolMessage(t.rwc, msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Receive reads one message.
func (t *StreamTransport) Receive() (godap.Message, error) {
	content, err := godap.ReadBaseMessage(t.reader)
	if err != nil {
		return nil, err
	}
	msg, err := godap.DecodeProtocolMessage(content)
	if err != nil {
		return nil, &DecodeError{Content: content, Err: err}
	}
	return msg, nil
}

// Close closes the stream.
func (t *StreamTransport) Close() error {
	return t.rwc.Close()
}

type stdio struct {
	io.Reader
	io.WriteCloser
	out io.Closer
}

func (s stdio) Close() error {
	err := s.WriteCloser.Close()
	if cerr := s.out.Close(); err == nil {
		err = cerr
	}
	return err
}

// StdioPipes connects to the standard streams of cmd, which must not have
// been started yet. Wrap the result with NewStreamTransport once cmd runs.
func StdioPipes(cmd *exec.Cmd) (io.ReadWriteCloser, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("get stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("get stdout pipe: %w", err)
	}
	return stdio{Reader: stdout, WriteCloser: stdin, out: stdout}, nil
}
