package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"switchyard/internal/api"
	"switchyard/internal/config"

	"github.com/spf13/cobra"
)

// commandContext is cmd's context, or a background context outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// serveAddress returns the address of a running `switchyard serve`: the flag value
// when set, metrics.listenAddress from config.yaml otherwise.
func serveAddress(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	sc, err := config.LoadConfig(resolvedConfigPath())
	if err != nil && sc.Metrics.ListenAddress == "" {
		return "", fmt.Errorf("failed to load configuration: %w", err)
	}
	if sc.Metrics.ListenAddress == "" {
		return "", fmt.Errorf("no serve address: set metrics.listenAddress or pass --address")
	}
	return sc.Metrics.ListenAddress, nil
}

// serveURL builds the URL of path on a serve listen address. A missing or wildcard
// host means the local machine.
func serveURL(addr, path string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr + path
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + path
}

// serverURL is the URL of a per-server control endpoint.
func serverURL(addr, name, action string) string {
	return serveURL(addr, "/servers/"+url.PathEscape(name)+"/"+action)
}

// postServe sends an empty POST to a serve endpoint and decodes the JSON answer into
// out. Error responses carry their message in an {"error": ...} body.
func postServe(ctx context.Context, client *http.Client, target string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach switchyard at %s (is 'switchyard serve' running?): %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		if json.Unmarshal(raw, &body) == nil && body.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, body.Error)
		}
		return fmt.Errorf("unexpected response from %s: %s %s", target, resp.Status, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", target, err)
	}
	return nil
}

// controlServer posts to a per-server control endpoint and returns the updated server.
func controlServer(ctx context.Context, client *http.Client, target string) (api.ServerDescriptor, error) {
	var desc api.ServerDescriptor
	err := postServe(ctx, client, target, &desc)
	return desc, err
}
