package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Request is the single command message the extension sends per host launch.
type Request struct {
	Command string  `json:"command"`
	Bank    string  `json:"bank,omitempty"`
	Options Options `json:"options"`

	// commandLabel is how the command field appeared on the wire, used when
	// reporting an unrecognised command that was missing or not a string.
	commandLabel string
}

// CommandLabel returns the command as it should be quoted in error messages.
func (r *Request) CommandLabel() string {
	if r.commandLabel != "" {
		return r.commandLabel
	}
	return r.Command
}

// UnmarshalJSON decodes a request, tolerating a missing or non-string
// command so that dispatch can report it as an unknown command. Keys match
// exactly; "Command" is not "command".
func (r *Request) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = Request{}

	cmd := bytes.TrimSpace(raw["command"])
	switch {
	case len(cmd) == 0 || bytes.Equal(cmd, []byte("null")):
		r.commandLabel = "null"
	case cmd[0] == '"':
		if err := json.Unmarshal(cmd, &r.Command); err != nil {
			return fmt.Errorf("command: %w", err)
		}
	default:
		r.commandLabel = string(cmd)
	}

	if bank := bytes.TrimSpace(raw["bank"]); len(bank) > 0 && !bytes.Equal(bank, []byte("null")) {
		if err := json.Unmarshal(bank, &r.Bank); err != nil {
			return fmt.Errorf("bank must be a string: %w", err)
		}
	}

	if opts := bytes.TrimSpace(raw["options"]); len(opts) > 0 && !bytes.Equal(opts, []byte("null")) {
		if err := json.Unmarshal(opts, &r.Options); err != nil {
			return fmt.Errorf("options: %w", err)
		}
	}

	return nil
}

// Options are the reconciliation switches forwarded to run_all as flags.
type Options struct {
	SkipCashbook        Flag `json:"skipCashbook,omitempty"`
	SkipDistribution    Flag `json:"skipDistribution,omitempty"`
	SkipBnpDistribution Flag `json:"skipBnpDistribution,omitempty"`
	ForceReconsolidate  Flag `json:"forceReconsolidate,omitempty"`
	Month               Text `json:"month,omitempty"`
	Entity              Text `json:"entity,omitempty"`
}

// UnmarshalJSON reads only the six option keys, matched exactly. Other keys
// are ignored.
func (o *Options) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*o = Options{}
	fields := []struct {
		key string
		dst json.Unmarshaler
	}{
		{"skipCashbook", &o.SkipCashbook},
		{"skipDistribution", &o.SkipDistribution},
		{"skipBnpDistribution", &o.SkipBnpDistribution},
		{"forceReconsolidate", &o.ForceReconsolidate},
		{"month", &o.Month},
		{"entity", &o.Entity},
	}
	for _, f := range fields {
		v, ok := raw[f.key]
		if !ok {
			continue
		}
		if err := f.dst.UnmarshalJSON(v); err != nil {
			return fmt.Errorf("%s: %w", f.key, err)
		}
	}
	return nil
}

// Flag is a boolean option decoded by truthiness: false, 0, "", null, [] and
// {} are false, anything else is true.
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Flag(truthy(v))
	return nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

// Text is a string option. Numbers are accepted and kept in their JSON
// spelling; null, false, 0 and "" mean the option is absent.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		*t = ""
		return nil
	}

	switch {
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	case bytes.Equal(data, []byte("null")), bytes.Equal(data, []byte("false")):
		*t = ""
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("must be a string or number, got %s", truncateForError(string(data)))
	}
	if f, err := n.Float64(); err == nil && f == 0 {
		*t = ""
		return nil
	}
	*t = Text(n.String())
	return nil
}

func truncateForError(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 40 {
		return s[:40] + "..."
	}
	return s
}
