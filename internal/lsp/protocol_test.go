package lsp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer is the far side of a Protocol: it reads the frames the client
// writes and can write frames back, exactly as a subprocess would over
// stdin/stdout.
type fakeServer struct {
	in  *bufio.Reader // frames written by the client
	out io.Writer     // frames delivered to the client

	outMu sync.Mutex
}

func newTestProtocol(t *testing.T) (*Protocol, *fakeServer) {
	t.Helper()

	clientReads, serverWrites := io.Pipe()
	serverReads, clientWrites := io.Pipe()
	t.Cleanup(func() {
		serverWrites.Close()
		clientWrites.Close()
	})

	p := NewProtocol(clientReads, clientWrites)
	srv := &fakeServer{in: bufio.NewReader(serverReads), out: serverWrites}
	return p, srv
}

// readFrame reads one Content-Length framed body from the client.
func (s *fakeServer) readFrame(t *testing.T) []byte {
	t.Helper()

	contentLength := -1
	for {
		line, err := s.in.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		if v, ok := strings.CutPrefix(line, "Content-Length:"); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			require.NoError(t, err)
			contentLength = n
		}
	}
	require.GreaterOrEqual(t, contentLength, 0)

	body := make([]byte, contentLength)
	_, err := io.ReadFull(s.in, body)
	require.NoError(t, err)
	return body
}

// writeFrame sends one framed body to the client.
func (s *fakeServer) writeFrame(t *testing.T, body string) {
	t.Helper()
	s.outMu.Lock()
	defer s.outMu.Unlock()
	_, err := fmt.Fprintf(s.out, "Content-Length: %d\r\n\r\n%s", len(body), body)
	require.NoError(t, err)
}

func TestSendRequest_CorrelatesResponse(t *testing.T) {
	p, srv := newTestProtocol(t)
	go p.ReadLoop(context.Background())

	go func() {
		var req Request
		if json.Unmarshal(srv.readFrame(t), &req) == nil {
			srv.writeFrame(t, fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":{"ok":true}}`, req.ID))
		}
	}()

	resp, err := p.SendRequest(context.Background(), "test/echo", map[string]string{"k": "v"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Result))
}

func TestSendRequest_OutOfOrderResponses(t *testing.T) {
	p, srv := newTestProtocol(t)
	go p.ReadLoop(context.Background())

	// Collect both requests, then answer them in reverse order.
	go func() {
		var reqs []Request
		for j := 0; j < 2; j++ {
			var req Request
			if json.Unmarshal(srv.readFrame(t), &req) != nil {
				return
			}
			reqs = append(reqs, req)
		}
		for i := len(reqs) - 1; i >= 0; i-- {
			srv.writeFrame(t, fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":"reply-%s"}`, reqs[i].ID, reqs[i].Method))
		}
	}()

	var wg sync.WaitGroup
	results := make([]string, 2)
	for i, method := range []string{"first", "second"} {
		i, method := i, method
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := p.SendRequest(context.Background(), method, nil)
			if assert.NoError(t, err) {
				results[i] = string(resp.Result)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, `"reply-first"`, results[0])
	assert.Equal(t, `"reply-second"`, results[1])
}

func TestSendRequest_ServerError(t *testing.T) {
	p, srv := newTestProtocol(t)
	go p.ReadLoop(context.Background())

	go func() {
		var req Request
		if json.Unmarshal(srv.readFrame(t), &req) == nil {
			srv.writeFrame(t, fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"error":{"code":-32601,"message":"unknown method"}}`, req.ID))
		}
	}()

	_, err := p.SendRequest(context.Background(), "test/missing", nil)
	require.Error(t, err)

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32601, rpcErr.Code)
	assert.Equal(t, "unknown method", rpcErr.Message)
	assert.True(t, rpcErr.MethodNotFound())
}

func TestSendRequest_DeadlineMapsToTimeout(t *testing.T) {
	p, srv := newTestProtocol(t)
	go p.ReadLoop(context.Background())
	go srv.readFrame(t) // swallow the request, never answer

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.SendRequest(ctx, "test/slow", nil)
	require.ErrorIs(t, err, ErrRequestTimeout)
}

func TestSendRequest_AfterClose(t *testing.T) {
	p, _ := newTestProtocol(t)
	p.Close()

	_, err := p.SendRequest(context.Background(), "test/any", nil)
	require.ErrorIs(t, err, ErrSessionLost)
}

func TestClose_ReleasesPendingWaiters(t *testing.T) {
	p, srv := newTestProtocol(t)
	go p.ReadLoop(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := p.SendRequest(context.Background(), "test/hang", nil)
		errCh <- err
	}()

	// Wait until the request is on the wire before closing.
	srv.readFrame(t)
	p.Close()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrSessionLost)
	case <-time.After(2 * time.Second):
		t.Fatal("pending request was not released by Close")
	}
}

func TestClose_Idempotent(t *testing.T) {
	p, _ := newTestProtocol(t)
	p.Close()
	p.Close()
}

func TestReadLoop_EOFIsSessionLost(t *testing.T) {
	p := NewProtocol(strings.NewReader(""), io.Discard)
	err := p.ReadLoop(context.Background())
	require.ErrorIs(t, err, ErrSessionLost)
}

func TestReadLoop_EOFAfterCloseIsClean(t *testing.T) {
	p := NewProtocol(strings.NewReader(""), io.Discard)
	p.Close()
	require.NoError(t, p.ReadLoop(context.Background()))
}

func TestReadLoop_MalformedFrames(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"bad content length", "Content-Length: nope\r\n\r\n{}"},
		{"negative content length", "Content-Length: -5\r\n\r\n{}"},
		{"missing content length", "Content-Type: application/json\r\n\r\n{}"},
		{"truncated body", "Content-Length: 100\r\n\r\n{\"jsonrpc\":\"2.0\"}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProtocol(strings.NewReader(tt.input), io.Discard)
			err := p.ReadLoop(context.Background())
			require.ErrorIs(t, err, ErrMalformedFrame)
		})
	}
}

func TestReadLoop_RoutesNotifications(t *testing.T) {
	body := `{"jsonrpc":"2.0","method":"pyright/endProgress","params":{"token":1}}`
	frame := fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(body), body)

	p := NewProtocol(strings.NewReader(frame), io.Discard)

	var got []Notification
	p.OnNotification(func(n Notification) { got = append(got, n) })

	// EOF after the single frame ends the loop.
	err := p.ReadLoop(context.Background())
	require.ErrorIs(t, err, ErrSessionLost)

	require.Len(t, got, 1)
	assert.Equal(t, "pyright/endProgress", got[0].Method)
	assert.JSONEq(t, `{"token":1}`, string(got[0].Params))
}

func TestReadLoop_AnswersServerToClientRequests(t *testing.T) {
	// workspace/configuration style: the server asks us something and must
	// get a reply or it stalls its own queue.
	body := `{"jsonrpc":"2.0","id":42,"method":"workspace/configuration","params":{"items":[]}}`
	frame := fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(body), body)

	var out bytes.Buffer
	p := NewProtocol(strings.NewReader(frame), &out)
	err := p.ReadLoop(context.Background())
	require.ErrorIs(t, err, ErrSessionLost)

	assert.Contains(t, out.String(), `"id":42`)
	assert.Contains(t, out.String(), `"result":null`)
}

func TestReadLoop_IgnoresExtraHeaders(t *testing.T) {
	body := `{"jsonrpc":"2.0","method":"noop"}`
	frame := fmt.Sprintf("Content-Type: application/vscode-jsonrpc\r\nContent-Length: %d\r\n\r\n%s", len(body), body)

	p := NewProtocol(strings.NewReader(frame), io.Discard)

	var seen int
	p.OnNotification(func(Notification) { seen++ })

	err := p.ReadLoop(context.Background())
	require.ErrorIs(t, err, ErrSessionLost)
	assert.Equal(t, 1, seen)
}

func TestSendNotification_Framing(t *testing.T) {
	var out bytes.Buffer
	p := NewProtocol(nil, &out)

	require.NoError(t, p.SendNotification("initialized", struct{}{}))

	raw := out.String()
	header, body, found := strings.Cut(raw, "\r\n\r\n")
	require.True(t, found, "frame must have a blank-line header terminator")

	var length int
	_, err := fmt.Sscanf(header, "Content-Length: %d", &length)
	require.NoError(t, err)
	assert.Equal(t, len(body), length)

	var req Request
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	assert.Equal(t, "2.0", req.JSONRPC)
	assert.Equal(t, "initialized", req.Method)
	assert.Zero(t, req.ID, "notifications carry no id")
}

func TestSendRequest_UniqueIDs(t *testing.T) {
	var out bytes.Buffer
	p := NewProtocol(nil, &out)

	// Fire requests with an already-cancelled context: the write happens,
	// the wait does not block.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 3; i++ {
		_, err := p.SendRequest(ctx, "test/id", nil)
		require.ErrorIs(t, err, context.Canceled)
	}

	ids := map[int64]bool{}
	for _, part := range strings.Split(out.String(), "Content-Length:") {
		if idx := strings.Index(part, "{"); idx >= 0 {
			var req Request
			require.NoError(t, json.Unmarshal([]byte(part[idx:]), &req))
			assert.False(t, ids[req.ID], "id %d reused", req.ID)
			ids[req.ID] = true
		}
	}
	assert.Len(t, ids, 3)
}

func TestReadLoop_DropsUnknownResponseIDs(t *testing.T) {
	// A response for an id nobody is waiting on must not wedge the loop.
	bodies := []string{
		`{"jsonrpc":"2.0","id":999,"result":"orphan"}`,
		`{"jsonrpc":"2.0","method":"late"}`,
	}
	var frames strings.Builder
	for _, b := range bodies {
		fmt.Fprintf(&frames, "Content-Length: %d\r\n\r\n%s", len(b), b)
	}

	p := NewProtocol(strings.NewReader(frames.String()), io.Discard)

	var methods []string
	p.OnNotification(func(n Notification) { methods = append(methods, n.Method) })

	err := p.ReadLoop(context.Background())
	require.ErrorIs(t, err, ErrSessionLost)
	assert.Equal(t, []string{"late"}, methods)
}
