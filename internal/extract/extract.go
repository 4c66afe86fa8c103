// Package extract recovers run_all's structured summary from its console output.
//
// run_all and the steps it drives print JSON blocks wrapped in literal
// markers:
//
//	JSON_RESULT_START
//	{"success": true, ...}
//	JSON_RESULT_END
//
// Blocks are matched left to right without overlap, each start marker paired
// with the first end marker after it. Only the last block is authoritative.
// When no marker is present a summary is synthesized from the exit code and
// the head of the output.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bankrecon/recon-host/internal/protocol"
)

const (
	StartMarker = "JSON_RESULT_START"
	EndMarker   = "JSON_RESULT_END"

	// RawMatchLimit and OutputLimit are counted in characters, not bytes.
	RawMatchLimit = 500
	OutputLimit   = 3000
)

// ErrUnterminated means a start marker had no end marker after it.
var ErrUnterminated = errors.New("unterminated " + StartMarker + " marker")

// Blocks returns the whitespace-trimmed inner text of every complete marker
// pair in order of appearance. If a start marker is left open after the last
// complete pair, dangling holds the text following it and open is true.
func Blocks(text string) (blocks []string, dangling string, open bool) {
	pos := 0
	for {
		i := strings.Index(text[pos:], StartMarker)
		if i < 0 {
			return blocks, "", false
		}
		start := pos + i + len(StartMarker)

		j := strings.Index(text[start:], EndMarker)
		if j < 0 {
			return blocks, strings.TrimSpace(text[start:]), true
		}

		blocks = append(blocks, strings.TrimSpace(text[start:start+j]))
		pos = start + j + len(EndMarker)
	}
}

// LastBlock returns the authoritative block. ok is false when the text holds
// no start marker at all. An open start marker after the last complete block
// yields ErrUnterminated together with the text that followed it.
func LastBlock(text string) (inner string, ok bool, err error) {
	blocks, dangling, open := Blocks(text)
	if open {
		return dangling, true, ErrUnterminated
	}
	if len(blocks) == 0 {
		return "", false, nil
	}
	return blocks[len(blocks)-1], true, nil
}

// ParseObject decodes inner as a single JSON object, keeping numbers exact.
func ParseObject(inner string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(inner))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty result payload")
		}
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("extra data after result payload at offset %d", dec.InputOffset())
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("result payload is %s, not an object", jsonKind(v))
	}
	return obj, nil
}

// Result turns the combined output and exit code of a finished run into the
// response sent to the extension.
func Result(output string, exitCode int, now time.Time) protocol.Response {
	ts := protocol.Timestamp(now)

	inner, found, err := LastBlock(output)
	if !found {
		return fallback(output, exitCode, ts)
	}

	var obj map[string]any
	if err == nil {
		obj, err = ParseObject(inner)
	}
	if err != nil {
		return protocol.Response{
			"success":    false,
			"error":      fmt.Sprintf("Could not parse reconciliation result: %v", err),
			"errorCode":  string(protocol.CodeExecution),
			"parseError": err.Error(),
			"rawMatch":   Truncate(inner, RawMatchLimit),
			"returnCode": exitCode,
			"timestamp":  ts,
		}
	}

	resp := protocol.Response(obj)
	if _, ok := resp["success"]; !ok {
		resp["success"] = exitCode == 0
	}
	resp["timestamp"] = ts
	resp["returnCode"] = exitCode
	return resp
}

func fallback(output string, exitCode int, ts string) protocol.Response {
	msg := "Reconciliation completed"
	if exitCode != 0 {
		msg = "Reconciliation failed"
	}
	return protocol.Response{
		"success":    exitCode == 0,
		"returnCode": exitCode,
		"message":    msg,
		"output":     Truncate(output, OutputLimit),
		"timestamp":  ts,
	}
}

// Truncate returns at most n characters of s.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "a boolean"
	case json.Number:
		return "a number"
	case string:
		return "a string"
	case []any:
		return "an array"
	default:
		return fmt.Sprintf("%T", v)
	}
}
