package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// jsonrpcVersion is the JSON-RPC version used by the LSP base protocol.
const jsonrpcVersion = "2.0"

// Request is an outbound JSON-RPC request. ID is omitted for notifications.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Response is an inbound JSON-RPC response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *responseError  `json:"error,omitempty"`
}

type responseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Notification is a server-initiated message with no reply expected.
type Notification struct {
	Method string
	Params json.RawMessage
}

// envelope is the inbound message shape before dispatch. A message with an
// ID and no Method is a response; one with a Method and no ID is a
// notification; one with both is a server-to-client request.
type envelope struct {
	ID     *int64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  *responseError  `json:"error"`
}

// Protocol frames JSON-RPC messages over a subprocess byte stream and
// correlates responses to pending requests by id. A single ReadLoop goroutine
// demultiplexes inbound frames; any number of goroutines may send.
type Protocol struct {
	reader *bufio.Reader
	writer io.Writer

	writeMu sync.Mutex

	nextID    atomic.Int64
	pending   map[int64]chan Response
	pendingMu sync.Mutex

	closed atomic.Bool

	// onNotification receives server-initiated notifications. Set before
	// ReadLoop starts; called from the read loop goroutine.
	onNotification func(Notification)
}

// NewProtocol creates a protocol handler over the server's stdout (r) and
// stdin (w).
func NewProtocol(r io.Reader, w io.Writer) *Protocol {
	var reader *bufio.Reader
	if r != nil {
		reader = bufio.NewReader(r)
	}
	return &Protocol{
		reader:  reader,
		writer:  w,
		pending: make(map[int64]chan Response),
	}
}

// OnNotification registers the notification handler. Must be called before
// ReadLoop starts.
func (p *Protocol) OnNotification(fn func(Notification)) {
	p.onNotification = fn
}

// SendRequest sends a request and blocks until the response arrives, the
// context is done, or the stream closes. Each request gets a fresh id; no id
// is reused while a request is pending.
func (p *Protocol) SendRequest(ctx context.Context, method string, params any) (*Response, error) {
	if p.closed.Load() {
		return nil, ErrSessionLost
	}

	id := p.nextID.Add(1)
	respCh := make(chan Response, 1)

	p.pendingMu.Lock()
	p.pending[id] = respCh
	p.pendingMu.Unlock()

	defer func() {
		p.pendingMu.Lock()
		delete(p.pending, id)
		p.pendingMu.Unlock()
	}()

	req := Request{JSONRPC: jsonrpcVersion, ID: id, Method: method, Params: params}
	if err := p.writeMessage(req); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrRequestTimeout, method)
		}
		return nil, ctx.Err()
	case resp, ok := <-respCh:
		if !ok {
			return nil, ErrSessionLost
		}
		if resp.Error != nil {
			return nil, &RPCError{Code: resp.Error.Code, Message: resp.Error.Message, Data: resp.Error.Data}
		}
		return &resp, nil
	}
}

// SendNotification sends a notification; no response is expected.
func (p *Protocol) SendNotification(method string, params any) error {
	if p.closed.Load() {
		return ErrSessionLost
	}
	return p.writeMessage(Request{JSONRPC: jsonrpcVersion, Method: method, Params: params})
}

// writeMessage marshals v and writes it with a Content-Length header. The
// write mutex keeps concurrent senders from interleaving frames.
func (p *Protocol) writeMessage(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(data))
	if _, err := io.WriteString(p.writer, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := p.writer.Write(data); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

// ReadLoop reads inbound frames and dispatches them until the stream closes
// or a frame is malformed. Run in its own goroutine; the returned error is
// session-fatal unless Close was already called.
func (p *Protocol) ReadLoop(ctx context.Context) error {
	if p.reader == nil {
		return fmt.Errorf("lsp: no reader configured")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, err := p.readMessage()
		if err != nil {
			if p.closed.Load() {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return ErrSessionLost
			}
			return err
		}
		p.dispatch(msg)
	}
}

// readMessage reads one Content-Length framed message body.
func (p *Protocol) readMessage() ([]byte, error) {
	contentLength := -1

	for {
		line, err := p.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		if v, ok := strings.CutPrefix(line, "Content-Length:"); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil || n < 0 {
				return nil, fmt.Errorf("%w: bad Content-Length %q", ErrMalformedFrame, strings.TrimSpace(v))
			}
			contentLength = n
		}
		// Other headers (Content-Type) are ignored.
	}

	if contentLength < 0 {
		return nil, fmt.Errorf("%w: missing Content-Length header", ErrMalformedFrame)
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(p.reader, body); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: truncated body", ErrMalformedFrame)
		}
		return nil, err
	}
	return body, nil
}

// dispatch routes one inbound message: responses to their pending caller,
// notifications to the handler, server-to-client requests to a stub reply so
// the server does not stall waiting on us.
func (p *Protocol) dispatch(msg []byte) {
	var env envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return
	}

	switch {
	case env.ID != nil && env.Method == "":
		resp := Response{JSONRPC: jsonrpcVersion, ID: *env.ID, Result: env.Result, Error: env.Error}
		// Claim the pending entry under the lock so Close cannot close the
		// channel between lookup and send.
		p.pendingMu.Lock()
		ch, ok := p.pending[resp.ID]
		if ok {
			delete(p.pending, resp.ID)
		}
		p.pendingMu.Unlock()
		if ok {
			ch <- resp
		}

	case env.ID != nil:
		// Server-to-client request (workspace/configuration and friends).
		// Reply with a null result to keep the server's queue moving.
		_ = p.writeMessage(Response{JSONRPC: jsonrpcVersion, ID: *env.ID, Result: json.RawMessage("null")})

	case env.Method != "":
		if p.onNotification != nil {
			p.onNotification(Notification{Method: env.Method, Params: env.Params})
		}
	}
}

// Close marks the protocol closed and releases every pending waiter with
// ErrSessionLost. Safe to call more than once; does not close the underlying
// streams.
func (p *Protocol) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}

	p.pendingMu.Lock()
	for id, ch := range p.pending {
		close(ch)
		delete(p.pending, id)
	}
	p.pendingMu.Unlock()
}
