package dap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	godap "github.com/google/go-dap"
)

// Client is a DAP client that communicates with a debug adapter.
type Client struct {
	transport Transport
	seq       atomic.Int64
	pending   map[int]*pendingRequest
	pendingMu sync.Mutex
	onEvent   func(godap.EventMessage)
	handlerMu sync.RWMutex
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	err       error
	errMu     sync.RWMutex
}

// pendingRequest tracks a request awaiting its response.
type pendingRequest struct {
	done      chan struct{}
	closeOnce sync.Once
	response  godap.ResponseMessage
	err       error
}

func (p *pendingRequest) close() {
	p.closeOnce.Do(func() {
		close(p.done)
	})
}

// request is an outgoing request with arbitrary arguments.
type request struct {
	godap.Request
	Arguments any `json:"arguments,omitempty"`
}

// NewClient creates a client and starts reading from transport.
func NewClient(transport Transport) *Client {
	c := &Client{
		transport: transport,
		pending:   make(map[int]*pendingRequest),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go c.receiveLoop()
	return c
}

// OnEvent sets the event handler. It runs on the receive goroutine, so
// events arrive in adapter order.
func (c *Client) OnEvent(handler func(godap.EventMessage)) {
	c.handlerMu.Lock()
	c.onEvent = handler
	c.handlerMu.Unlock()
}

// Close closes the client and the transport.
func (c *Client) Close() error {
	first := false
	c.closeOnce.Do(func() {
		close(c.done)
		first = true
	})
	if !first {
		return nil
	}
	return c.transport.Close()
}

// Stopped is closed when the receive loop has ended.
func (c *Client) Stopped() <-chan struct{} {
	return c.stopped
}

// Err returns the error that ended the receive loop, if any.
func (c *Client) Err() error {
	c.errMu.RLock()
	defer c.errMu.RUnlock()
	return c.err
}

func (c *Client) receiveLoop() {
	defer close(c.stopped)
	for {
		msg, err := c.transport.Receive()
		if err != nil {
			var decodeErr *DecodeError
			if errors.As(err, &decodeErr) {
				continue
			}
			select {
			case <-c.done:
				err = ErrClosed
			default:
			}
			c.fail(err)
			return
		}

		select {
		case <-c.done:
			c.fail(ErrClosed)
			return
		default:
		}

		c.handleMessage(msg)
	}
}

// fail records err and releases every pending request.
func (c *Client) fail(err error) {
	c.errMu.Lock()
	c.err = err
	c.errMu.Unlock()

	c.pendingMu.Lock()
	for _, req := range c.pending {
		req.err = err
		req.close()
	}
	c.pending = make(map[int]*pendingRequest)
	c.pendingMu.Unlock()
}

func (c *Client) handleMessage(msg godap.Message) {
	switch m := msg.(type) {
	case godap.ResponseMessage:
		c.handleResponse(m)
	case godap.EventMessage:
		c.handlerMu.RLock()
		handler := c.onEvent
		c.handlerMu.RUnlock()
		if handler != nil {
			handler(m)
		}
	case godap.RequestMessage:
		c.rejectReverseRequest(m.GetRequest())
	}
}

func (c *Client) handleResponse(resp godap.ResponseMessage) {
	seq := resp.GetResponse().RequestSeq

	c.pendingMu.Lock()
	req, ok := c.pending[seq]
	if ok {
		delete(c.pending, seq)
	}
	c.pendingMu.Unlock()

	if ok {
		req.response = resp
		req.close()
	}
}

// rejectReverseRequest answers adapter initiated requests such as
// runInTerminal, which this client does not implement.
func (c *Client) rejectReverseRequest(req *godap.Request) {
	resp := &godap.Response{
		ProtocolMessage: godap.ProtocolMessage{Seq: c.nextSeq(), Type: "response"},
		RequestSeq:      req.Seq,
		Success:         false,
		Command:         req.Command,
		Message:         "not supported",
	}
	_ = c.transport.Send(resp)
}

func (c *Client) nextSeq() int {
	return int(c.seq.Add(1))
}

// Do sends a request and waits for its response. A response with
// success=false is returned as *ResponseError.
func (c *Client) Do(ctx context.Context, command string, args any) (godap.ResponseMessage, error) {
	select {
	case <-c.done:
		return nil, ErrClosed
	case <-c.stopped:
		return nil, ErrClosed
	default:
	}

	seq := c.nextSeq()
	req := &request{
		Request: godap.Request{
			ProtocolMessage: godap.ProtocolMessage{Seq: seq, Type: "request"},
			Command:         command,
		},
		Arguments: args,
	}

	pending := &pendingRequest{done: make(chan struct{})}
	c.pendingMu.Lock()
	c.pending[seq] = pending
	c.pendingMu.Unlock()

	if err := c.transport.Send(req); err != nil {
		c.forget(seq)
		return nil, fmt.Errorf("send %s: %w", command, err)
	}

	select {
	case <-ctx.Done():
		c.forget(seq)
		return nil, ctx.Err()
	case <-pending.done:
		if pending.err != nil {
			return nil, pending.err
		}
		r := pending.response.GetResponse()
		if !r.Success {
			return nil, &ResponseError{Command: command, Message: r.Message}
		}
		return pending.response, nil
	}
}

func (c *Client) forget(seq int) {
	c.pendingMu.Lock()
	delete(c.pending, seq)
	c.pendingMu.Unlock()
}

// DefaultInitializeArguments returns the arguments this client initializes
// adapters with.
func DefaultInitializeArguments(adapterID string) godap.InitializeRequestArguments {
	return godap.InitializeRequestArguments{
		ClientID:        "dbgcore",
		ClientName:      "dbgcore",
		AdapterID:       adapterID,
		Locale:          "en-US",
		LinesStartAt1:   true,
		ColumnsStartAt1: true,
		PathFormat:      "path",
	}
}

// Initialize sends the initialize request.
func (c *Client) Initialize(ctx context.Context, args godap.InitializeRequestArguments) (*godap.Capabilities, error) {
	resp, err := c.Do(ctx, "initialize", args)
	if err != nil {
		return nil, err
	}
	init, ok := resp.(*godap.InitializeResponse)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedResponse, resp)
	}
	return &init.Body, nil
}

// ConfigurationDone sends the configurationDone request.
func (c *Client) ConfigurationDone(ctx context.Context) error {
	_, err := c.Do(ctx, "configurationDone", nil)
	return err
}

// Launch sends the launch request. args are adapter specific.
func (c *Client) Launch(ctx context.Context, args any) error {
	_, err := c.Do(ctx, "launch", args)
	return err
}

// Attach sends the attach request. args are adapter specific.
func (c *Client) Attach(ctx context.Context, args any) error {
	_, err := c.Do(ctx, "attach", args)
	return err
}

// Pause sends the pause request.
func (c *Client) Pause(ctx context.Context, threadID int) error {
	_, err := c.Do(ctx, "pause", godap.PauseArguments{ThreadId: threadID})
	return err
}

// Continue sends the continue request.
func (c *Client) Continue(ctx context.Context, threadID int) error {
	_, err := c.Do(ctx, "continue", godap.ContinueArguments{ThreadId: threadID})
	return err
}

// Next sends the next (step over) request.
func (c *Client) Next(ctx context.Context, threadID int) error {
	_, err := c.Do(ctx, "next", godap.NextArguments{ThreadId: threadID})
	return err
}

// StepIn sends the stepIn request.
func (c *Client) StepIn(ctx context.Context, threadID int) error {
	_, err := c.Do(ctx, "stepIn", godap.StepInArguments{ThreadId: threadID})
	return err
}

// StepOut sends the stepOut request.
func (c *Client) StepOut(ctx context.Context, threadID int) error {
	_, err := c.Do(ctx, "stepOut", godap.StepOutArguments{ThreadId: threadID})
	return err
}

// Threads sends the threads request.
func (c *Client) Threads(ctx context.Context) ([]godap.Thread, error) {
	resp, err := c.Do(ctx, "threads", nil)
	if err != nil {
		return nil, err
	}
	threads, ok := resp.(*godap.ThreadsResponse)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedResponse, resp)
	}
	return threads.Body.Threads, nil
}

// Disconnect sends the disconnect request.
func (c *Client) Disconnect(ctx context.Context, terminateDebuggee bool) error {
	_, err := c.Do(ctx, "disconnect", godap.DisconnectArguments{TerminateDebuggee: terminateDebuggee})
	return err
}

// Terminate sends the terminate request.
func (c *Client) Terminate(ctx context.Context) error {
	_, err := c.Do(ctx, "terminate", godap.TerminateArguments{})
	return err
}
