package host

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bankrecon/recon-host/internal/log"
	"github.com/bankrecon/recon-host/internal/protocol"
)

var fixedNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func TestMain(m *testing.M) {
	log.Setup("ERROR", io.Discard)
	os.Exit(m.Run())
}

type handlerFunc func(ctx context.Context, req *protocol.Request) protocol.Response

func (f handlerFunc) Dispatch(ctx context.Context, req *protocol.Request) protocol.Response {
	return f(ctx, req)
}

func echoHandler() handlerFunc {
	return func(_ context.Context, req *protocol.Request) protocol.Response {
		return protocol.Response{"success": true, "command": req.Command, "bank": req.Bank}
	}
}

func frame(payload string) []byte {
	b := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(b, uint32(len(payload)))
	copy(b[4:], payload)
	return b
}

// readResponse decodes the single frame in out and checks nothing follows it.
func readResponse(t *testing.T, out *bytes.Buffer) map[string]any {
	t.Helper()
	payload, err := protocol.ReadFrame(out)
	require.NoError(t, err)
	assert.Zero(t, out.Len(), "expected exactly one frame")

	var resp map[string]any
	require.NoError(t, json.Unmarshal(payload, &resp))
	return resp
}

func serve(h Handler, in []byte) (int, *bytes.Buffer) {
	var out bytes.Buffer
	code := New(h, WithClock(func() time.Time { return fixedNow })).
		Serve(context.Background(), bytes.NewReader(in), &out)
	return code, &out
}

func TestServe_Success(t *testing.T) {
	code, out := serve(echoHandler(), frame(`{"command":"ping","bank":"BNP"}`))
	assert.Equal(t, ExitOK, code)

	resp := readResponse(t, out)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "ping", resp["command"])
	assert.Equal(t, "BNP", resp["bank"])
}

func TestServe_ReadsOnlyOneFrame(t *testing.T) {
	calls := 0
	h := handlerFunc(func(context.Context, *protocol.Request) protocol.Response {
		calls++
		return protocol.Response{"success": true}
	})

	in := append(frame(`{"command":"ping"}`), frame(`{"command":"ping"}`)...)
	code, out := serve(h, in)
	assert.Equal(t, ExitOK, code)
	assert.Equal(t, 1, calls)
	readResponse(t, out)
}

func TestServe_CleanEOF(t *testing.T) {
	called := false
	h := handlerFunc(func(context.Context, *protocol.Request) protocol.Response {
		called = true
		return nil
	})

	code, out := serve(h, nil)
	assert.Equal(t, ExitOK, code)
	assert.Zero(t, out.Len(), "nothing may be written on clean EOF")
	assert.False(t, called)
}

func TestServe_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{"short payload", append([]byte{10, 0, 0, 0}, []byte(`{"a"`)...)},
		{"partial prefix", []byte{5, 0}},
		{"not json", frame(`{command: ping}`)},
		{"invalid utf-8", frame("{\"command\":\"\xff\"}")},
		{"bad option type", frame(`{"command":"run_reconciliation","options":{"month":[1]}}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, out := serve(echoHandler(), tt.in)
			assert.Equal(t, ExitError, code)

			resp := readResponse(t, out)
			assert.Equal(t, false, resp["success"])
			assert.Equal(t, string(protocol.CodeInvalidJSON), resp["errorCode"])
			assert.True(t, strings.HasPrefix(resp["error"].(string), "Invalid JSON input:"), resp["error"])
			assert.Equal(t, protocol.Timestamp(fixedNow), resp["timestamp"])
		})
	}
}

func TestServe_PanicIsFatal(t *testing.T) {
	h := handlerFunc(func(context.Context, *protocol.Request) protocol.Response {
		panic("boom")
	})

	code, out := serve(h, frame(`{"command":"ping"}`))
	assert.Equal(t, ExitError, code)

	resp := readResponse(t, out)
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, string(protocol.CodeFatal), resp["errorCode"])
	assert.Equal(t, "Fatal error: boom", resp["error"])
}

func TestServe_NilResponseIsFatal(t *testing.T) {
	h := handlerFunc(func(context.Context, *protocol.Request) protocol.Response { return nil })

	code, out := serve(h, frame(`{"command":"ping"}`))
	assert.Equal(t, ExitError, code)
	assert.Equal(t, string(protocol.CodeFatal), readResponse(t, out)["errorCode"])
}

func TestServe_OversizedResponse(t *testing.T) {
	h := handlerFunc(func(context.Context, *protocol.Request) protocol.Response {
		return protocol.Response{"success": true, "output": strings.Repeat("x", protocol.MaxOutboundSize)}
	})

	code, out := serve(h, frame(`{"command":"run_reconciliation"}`))
	assert.Equal(t, ExitError, code)

	resp := readResponse(t, out)
	assert.Equal(t, string(protocol.CodeFatal), resp["errorCode"])
	assert.Contains(t, resp["error"], "outbound size limit")
}

func TestServe_UnencodableResponse(t *testing.T) {
	h := handlerFunc(func(context.Context, *protocol.Request) protocol.Response {
		return protocol.Response{"success": true, "bad": make(chan int)}
	})

	code, out := serve(h, frame(`{"command":"ping"}`))
	assert.Equal(t, ExitError, code)

	resp := readResponse(t, out)
	assert.Equal(t, string(protocol.CodeFatal), resp["errorCode"])
	assert.Contains(t, resp["error"], "unsupported type")
}

func TestServe_PassesContext(t *testing.T) {
	type ctxKey struct{}
	ctx := context.WithValue(context.Background(), ctxKey{}, 7)

	h := handlerFunc(func(got context.Context, _ *protocol.Request) protocol.Response {
		return protocol.Response{"success": got.Value(ctxKey{}) == 7}
	})

	var out bytes.Buffer
	code := New(h).Serve(ctx, bytes.NewReader(frame(`{"command":"ping"}`)), &out)
	assert.Equal(t, ExitOK, code)
	assert.Equal(t, true, readResponse(t, &out)["success"])
}

func TestNewInvocationID(t *testing.T) {
	a, b := NewInvocationID(), NewInvocationID()
	assert.NotEqual(t, a, b)
	_, err := uuid.Parse(a)
	assert.NoError(t, err)
}
