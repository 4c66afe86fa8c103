package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Keys lists the settings a config file may contain, in file order.
var Keys = []string{
	"bankrecon_dir",
	"run_all_script",
	"python",
	"timeout_seconds",
	"log_level",
	"log_file",
	"lock_file",
}

// GetPath returns the effective value of a setting, after defaults and
// environment overrides.
func (c *Config) GetPath(key string) (any, error) {
	if !slices.Contains(Keys, key) {
		return nil, fmt.Errorf("unknown key %q (known: %s)", key, strings.Join(Keys, ", "))
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return getValue(m, key)
}

func getValue(m map[string]any, key string) (any, error) {
	val, exists := m[key]
	if !exists {
		return nil, fmt.Errorf("key %q not found", key)
	}
	return val, nil
}

// SetValue writes key=value into the config file at path, creating the file
// when it does not exist. JSON files stay JSON; YAML files are edited in
// place so comments survive. The change is rolled back if the result no
// longer loads cleanly.
func SetValue(path, key, value string) error {
	if !slices.Contains(Keys, key) {
		return fmt.Errorf("unknown key %q (known: %s)", key, strings.Join(Keys, ", "))
	}
	if key == "timeout_seconds" {
		if n, err := strconv.Atoi(value); err != nil || n <= 0 {
			return fmt.Errorf("timeout_seconds must be a positive integer, got %q", value)
		}
	}

	original, err := os.ReadFile(path)
	exists := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	trimmed := bytes.TrimSpace(bytes.TrimPrefix(original, utf8BOM))
	var candidate []byte
	if len(trimmed) == 0 || trimmed[0] == '{' {
		candidate, err = setJSON(trimmed, key, value)
	} else {
		candidate, err = setYAML(original, key, value)
	}
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	return persistWithValidation(path, original, exists, candidate)
}

// setJSON sets key in a JSON object, keeping the existing key order.
func setJSON(data []byte, key, value string) ([]byte, error) {
	type entry struct {
		key string
		val json.RawMessage
	}

	var entries []entry
	if len(data) > 0 {
		dec := json.NewDecoder(bytes.NewReader(data))
		if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
			return nil, fmt.Errorf("config file is not a JSON object")
		}
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			k, _ := tok.(string)
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return nil, fmt.Errorf("value of %q: %w", k, err)
			}
			entries = append(entries, entry{key: k, val: raw})
		}
	}

	encoded, err := json.Marshal(typedValue(key, value))
	if err != nil {
		return nil, err
	}

	replaced := false
	for i := range entries {
		if entries[i].key == key {
			entries[i].val = encoded
			replaced = true
		}
	}
	if !replaced {
		entries = append(entries, entry{key: key, val: encoded})
	}

	var buf bytes.Buffer
	buf.WriteString("{\n")
	for i, e := range entries {
		k, _ := json.Marshal(e.key)
		var v bytes.Buffer
		if err := json.Indent(&v, e.val, "  ", "  "); err != nil {
			return nil, err
		}
		fmt.Fprintf(&buf, "  %s: %s", k, v.Bytes())
		if i < len(entries)-1 {
			buf.WriteString(",")
		}
		buf.WriteString("\n")
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

// setYAML edits the node for key so the rest of the document is untouched.
func setYAML(data []byte, key, value string) ([]byte, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("config file has no document")
	}

	target, err := findNode(root.Content[0], key, true)
	if err != nil {
		return nil, err
	}
	target.Kind = yaml.ScalarNode
	target.Value = value
	target.Tag = scalarTag(key)
	target.Style = 0
	target.Content = nil

	return yaml.Marshal(&root)
}

func findNode(node *yaml.Node, key string, create bool) (*yaml.Node, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("not a mapping node")
	}

	for i := 0; i < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1], nil
		}
	}

	if !create {
		return nil, fmt.Errorf("key %q not found", key)
	}
	keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
	valueNode := &yaml.Node{Kind: yaml.ScalarNode}
	node.Content = append(node.Content, keyNode, valueNode)
	return valueNode, nil
}

func typedValue(key, value string) any {
	if key == "timeout_seconds" {
		n, _ := strconv.Atoi(value)
		return n
	}
	return value
}

// scalarTag keeps paths like "0123" or "true" from turning into numbers or
// booleans; only timeout_seconds is numeric.
func scalarTag(key string) string {
	if key == "timeout_seconds" {
		return "!!int"
	}
	return "!!str"
}

func persistWithValidation(path string, original []byte, existed bool, candidate []byte) error {
	mode := os.FileMode(0644)
	if info, statErr := os.Stat(path); statErr == nil {
		mode = info.Mode().Perm()
	}

	if err := os.WriteFile(path, candidate, mode); err != nil {
		return fmt.Errorf("failed to persist config change: %w", err)
	}

	cfg := Load(path)
	if cfg.Source.Warning == "" {
		return nil
	}

	var restoreErr error
	if existed {
		restoreErr = os.WriteFile(path, original, mode)
	} else {
		restoreErr = os.Remove(path)
	}
	if restoreErr != nil {
		return fmt.Errorf("validation failed (%s) and rollback failed (%v)", cfg.Source.Warning, restoreErr)
	}
	return fmt.Errorf("validation failed: %s", cfg.Source.Warning)
}
