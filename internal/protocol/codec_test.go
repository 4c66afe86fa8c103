package protocol

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func frame(payload string) []byte {
	buf := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[4:], payload)
	return buf
}

func TestReadMessage(t *testing.T) {
	tests := []struct {
		name       string
		input      []byte
		wantEOF    bool
		wantDecode bool
		checkFn    func(t *testing.T, req *Request)
	}{
		{
			name:  "ping",
			input: frame(`{"command":"ping"}`),
			checkFn: func(t *testing.T, req *Request) {
				if req.Command != "ping" {
					t.Errorf("want command=ping, got %q", req.Command)
				}
			},
		},
		{
			name:  "run with options",
			input: frame(`{"command":"run_reconciliation","bank":"BNP","options":{"skipCashbook":true,"month":"2026-01","entity":"UAE"}}`),
			checkFn: func(t *testing.T, req *Request) {
				if req.Bank != "BNP" {
					t.Errorf("want bank=BNP, got %q", req.Bank)
				}
				if !req.Options.SkipCashbook {
					t.Error("want skipCashbook=true")
				}
				if req.Options.SkipDistribution {
					t.Error("want skipDistribution=false")
				}
				if req.Options.Month != "2026-01" || req.Options.Entity != "UAE" {
					t.Errorf("unexpected month/entity: %q %q", req.Options.Month, req.Options.Entity)
				}
			},
		},
		{
			name:  "upper-case command key is not the command",
			input: frame(`{"COMMAND":"run_reconciliation","Bank":"BNP"}`),
			checkFn: func(t *testing.T, req *Request) {
				if req.Command != "" || req.CommandLabel() != "null" {
					t.Errorf("want missing command, got %q (label %q)", req.Command, req.CommandLabel())
				}
				if req.Bank != "" {
					t.Errorf("want empty bank, got %q", req.Bank)
				}
			},
		},
		{
			name:  "mixed-case duplicate does not override command",
			input: frame(`{"command":"ping","Command":"run_reconciliation"}`),
			checkFn: func(t *testing.T, req *Request) {
				if req.Command != "ping" {
					t.Errorf("want command=ping, got %q", req.Command)
				}
			},
		},
		{
			name:  "missing command",
			input: frame(`{"bank":"HSBC"}`),
			checkFn: func(t *testing.T, req *Request) {
				if req.Command != "" {
					t.Errorf("want empty command, got %q", req.Command)
				}
				if req.CommandLabel() != "null" {
					t.Errorf("want label null, got %q", req.CommandLabel())
				}
			},
		},
		{
			name:  "non-string command",
			input: frame(`{"command":42}`),
			checkFn: func(t *testing.T, req *Request) {
				if req.CommandLabel() != "42" {
					t.Errorf("want label 42, got %q", req.CommandLabel())
				}
			},
		},
		{
			name:  "non-ascii payload",
			input: frame(`{"command":"ping","bank":"Société Générale"}`),
			checkFn: func(t *testing.T, req *Request) {
				if req.Bank != "Société Générale" {
					t.Errorf("unexpected bank %q", req.Bank)
				}
			},
		},
		{
			name:    "closed before prefix",
			input:   nil,
			wantEOF: true,
		},
		{
			name:       "partial prefix",
			input:      []byte{0x05, 0x00},
			wantDecode: true,
		},
		{
			name:       "short payload",
			input:      append([]byte{0x20, 0x00, 0x00, 0x00}, []byte(`{"command"`)...),
			wantDecode: true,
		},
		{
			name:       "invalid JSON",
			input:      frame(`{not json}`),
			wantDecode: true,
		},
		{
			name:       "invalid UTF-8",
			input:      frame("{\"command\":\"\xff\xfe\"}"),
			wantDecode: true,
		},
		{
			name:       "top-level array",
			input:      frame(`["ping"]`),
			wantDecode: true,
		},
		{
			name:       "bank not a string",
			input:      frame(`{"command":"run_reconciliation","bank":7}`),
			wantDecode: true,
		},
		{
			name:       "month not a string",
			input:      frame(`{"command":"run_reconciliation","options":{"month":true}}`),
			wantDecode: true,
		},
		{
			name:       "oversized length",
			input:      []byte{0xff, 0xff, 0xff, 0xff},
			wantDecode: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ReadMessage(bytes.NewReader(tt.input))

			if tt.wantEOF {
				if !errors.Is(err, io.EOF) {
					t.Fatalf("want io.EOF, got %v", err)
				}
				return
			}

			if tt.wantDecode {
				var decErr *DecodeError
				if !errors.As(err, &decErr) {
					t.Fatalf("want *DecodeError, got %v", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("ReadMessage() error = %v", err)
			}
			if tt.checkFn != nil {
				tt.checkFn(t, req)
			}
		})
	}
}

func TestOptionTruthiness(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Options
	}{
		{
			name:  "falsy values",
			input: `{"command":"x","options":{"skipCashbook":false,"skipDistribution":0,"skipBnpDistribution":"","forceReconsolidate":null,"month":"","entity":null}}`,
			want:  Options{},
		},
		{
			name:  "truthy values",
			input: `{"command":"x","options":{"skipCashbook":1,"skipDistribution":"yes","skipBnpDistribution":[1],"forceReconsolidate":{"a":1}}}`,
			want:  Options{SkipCashbook: true, SkipDistribution: true, SkipBnpDistribution: true, ForceReconsolidate: true},
		},
		{
			name:  "numeric month",
			input: `{"command":"x","options":{"month":3,"entity":0}}`,
			want:  Options{Month: "3"},
		},
		{
			name:  "option keys match exactly",
			input: `{"command":"x","options":{"SKIPCASHBOOK":true,"Month":"2026-01","skipdistribution":1,"entity":"UAE"}}`,
			want:  Options{Entity: "UAE"},
		},
		{
			name:  "unknown keys ignored",
			input: `{"command":"x","options":{"dryRun":true}}`,
			want:  Options{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ReadMessage(bytes.NewReader(frame(tt.input)))
			if err != nil {
				t.Fatalf("ReadMessage() error = %v", err)
			}
			if req.Options != tt.want {
				t.Errorf("options = %+v, want %+v", req.Options, tt.want)
			}
		})
	}
}

func TestWriteMessage(t *testing.T) {
	var buf bytes.Buffer
	resp := Response{"success": true, "message": "a <b> & é", "timestamp": "t"}

	if err := WriteMessage(&buf, resp); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}

	out := buf.Bytes()
	size := binary.LittleEndian.Uint32(out[:4])
	if int(size) != len(out)-4 {
		t.Fatalf("length prefix %d does not match payload %d", size, len(out)-4)
	}

	payload := string(out[4:])
	if strings.HasSuffix(payload, "\n") {
		t.Error("payload must not carry a trailing newline")
	}
	if !strings.Contains(payload, `"a <b> & é"`) {
		t.Errorf("payload escaped unexpectedly: %s", payload)
	}
}

func TestRoundTrip(t *testing.T) {
	payloads := []string{
		`{"command":"ping"}`,
		`{"command":"run_reconciliation","bank":"ALL","options":{"forceReconsolidate":true}}`,
		`{}`,
		`{"big":"` + strings.Repeat("x", 70000) + `"}`,
	}

	for _, p := range payloads {
		var buf bytes.Buffer
		if err := WriteFrame(&buf, []byte(p)); err != nil {
			t.Fatalf("WriteFrame() error = %v", err)
		}
		if !bytes.Equal(buf.Bytes(), frame(p)) {
			t.Fatalf("encoded frame differs for %q", p[:min(len(p), 30)])
		}
		got, err := ReadFrame(&buf)
		if err != nil {
			t.Fatalf("ReadFrame() error = %v", err)
		}
		if string(got) != p {
			t.Errorf("round trip mismatch for %q", p[:min(len(p), 30)])
		}
	}
}

func TestWriteFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, make([]byte, MaxOutboundSize+1))
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("want ErrFrameTooLarge, got %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("no bytes may be written for an oversized frame, got %d", buf.Len())
	}
}

func TestWriteFrameFlushes(t *testing.T) {
	var sink bytes.Buffer
	w := bufio.NewWriter(&sink)

	if err := WriteMessage(w, Response{"success": true}); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	if sink.Len() == 0 {
		t.Error("buffered writer was not flushed")
	}
}

func TestFailure(t *testing.T) {
	at := time.Date(2026, 2, 8, 12, 0, 0, 123456000, time.UTC)

	resp := Failure("", "boom", at)
	if resp.Success() {
		t.Error("failure must not be successful")
	}
	if resp.ErrorCode() != CodeUnknown {
		t.Errorf("want UNKNOWN_ERROR, got %s", resp.ErrorCode())
	}
	if resp["timestamp"] != "2026-02-08T12:00:00.123456Z" {
		t.Errorf("unexpected timestamp %v", resp["timestamp"])
	}

	resp = Failure(CodeTimeout, "slow", at)
	if resp.ErrorCode() != CodeTimeout || resp["error"] != "slow" {
		t.Errorf("unexpected failure %v", resp)
	}
}
