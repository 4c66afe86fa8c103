package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"
)

const defaultHostName = "com.bankrecon.recon_host"

var (
	// Chrome extension ids are 32 letters from a to p.
	extensionIDPattern = regexp.MustCompile(`^[a-p]{32}$`)
	// Host names are dot-separated lowercase alphanumeric/underscore segments.
	hostNamePattern = regexp.MustCompile(`^[a-z0-9_]+(\.[a-z0-9_]+)*$`)
)

// hostManifest is the native messaging host manifest the browser reads to
// find and authorize this executable.
type hostManifest struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Path           string   `json:"path"`
	Type           string   `json:"type"`
	AllowedOrigins []string `json:"allowed_origins"`
}

func newManifestCmd() *cobra.Command {
	var extensionIDs []string
	var name, path string

	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Print the native messaging host manifest",
		Long: `Prints the manifest JSON that registers this executable as a native
messaging host. Save it in the browser's NativeMessagingHosts directory as
<name>.json (on Windows, point the registry key at it).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := buildManifest(name, path, extensionIDs)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(m, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to render manifest: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&extensionIDs, "extension-id", nil, "Extension id allowed to connect (repeatable)")
	cmd.Flags().StringVar(&name, "name", defaultHostName, "Host name the extension connects to")
	cmd.Flags().StringVar(&path, "path", "", "Executable path (default: this executable)")
	_ = cmd.MarkFlagRequired("extension-id")
	return cmd
}

func buildManifest(name, path string, extensionIDs []string) (*hostManifest, error) {
	if !hostNamePattern.MatchString(name) {
		return nil, fmt.Errorf("invalid host name %q: use lowercase letters, digits, underscores and dots", name)
	}

	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to locate executable: %w", err)
		}
		path = exe
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	origins := make([]string, 0, len(extensionIDs))
	for _, id := range extensionIDs {
		id = strings.TrimSpace(id)
		if !extensionIDPattern.MatchString(id) {
			return nil, fmt.Errorf("invalid extension id %q: expected 32 letters a-p", id)
		}
		origins = append(origins, "chrome-extension://"+id+"/")
	}
	if len(origins) == 0 {
		return nil, fmt.Errorf("at least one --extension-id is required")
	}

	return &hostManifest{
		Name:           name,
		Description:    "BankRecon reconciliation host",
		Path:           abs,
		Type:           "stdio",
		AllowedOrigins: origins,
	}, nil
}
