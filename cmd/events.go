package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"switchyard/internal/api"
	"switchyard/internal/config"
	"switchyard/internal/events"
	"switchyard/internal/formatting"

	"github.com/spf13/cobra"
)

var (
	eventsOutputFormat string
	eventsQuiet        bool
	eventsFile         string
	eventsServer       string
	eventsTypes        []string
	eventsSince        string
	eventsLimit        int
	eventsFollow       bool
	eventsAddress      string
)

// eventsCmd reads the persisted orchestration event log or follows a running fleet.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List orchestration events from the persisted event log",
	Long: `Reads the JSON-lines event log written while switchyard runs and lists the
events that match the filters, oldest first.

The log location is persistence.eventLogPath from config.yaml, resolved against
the configuration directory, unless --file is given.

With --follow, events are streamed live from a running 'switchyard serve' instead
(the address defaults to metrics.listenAddress) until interrupted. --server and
--type apply; --since and --limit do not.

Filtering Options:
  --server   Only events for this server
  --type     Only these event types (repeatable), e.g. server_crashed
  --since    Only events newer than a duration (1h, 30m) or an RFC3339 time
  --limit    Keep only the most recent N matches (default: 50, 0 for all)

Examples:
  switchyard events
  switchyard events --server builder --since 1h
  switchyard events --type server_crashed --type server_restart_exhausted
  switchyard events --file /var/lib/switchyard/events.jsonl -o json
  switchyard events --follow --server builder`,
	Args: cobra.NoArgs,
	RunE: runEvents,
}

func runEvents(cmd *cobra.Command, args []string) error {
	initCLILogging()
	format, err := formatting.ParseFormat(eventsOutputFormat)
	if err != nil {
		return err
	}

	formatter := formatting.NewFormatter(formatting.Options{
		Format: format,
		Out:    cmd.OutOrStdout(),
		Quiet:  eventsQuiet,
	})

	if eventsFollow {
		addr, err := serveAddress(eventsAddress)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return followEvents(ctx, http.DefaultClient, eventStreamURL(addr, eventsServer, eventsTypes), formatter.FormatEventLine)
	}

	path := eventsFile
	if path == "" {
		path, err = eventLogPath(resolvedConfigPath())
		if err != nil {
			return err
		}
	}

	filter, err := buildEventFilter(eventsServer, eventsTypes, eventsSince, eventsLimit, time.Now())
	if err != nil {
		return err
	}

	all, err := events.ReadFile(path)
	if err != nil {
		return err
	}
	return formatter.FormatEvents(events.Select(all, filter))
}

// eventStreamURL is the serve event stream filtered by server and types.
func eventStreamURL(addr, server string, types []string) string {
	q := url.Values{}
	if server != "" {
		q.Set("server", server)
	}
	for _, t := range types {
		q.Add("type", t)
	}
	target := serveURL(addr, "/events/stream")
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	return target
}

// followEvents hands every event of the stream at target to emit until the stream
// ends or ctx is done. Cancellation is not an error.
func followEvents(ctx context.Context, client *http.Client, target string, emit func(api.OrchestrationEvent) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to reach switchyard at %s (is 'switchyard serve' running?): %w", target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected response from %s: %s", target, resp.Status)
	}

	dec := json.NewDecoder(resp.Body)
	for {
		var ev api.OrchestrationEvent
		if err := dec.Decode(&ev); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read event stream: %w", err)
		}
		if err := emit(ev); err != nil {
			return err
		}
	}
}

// eventLogPath returns the configured event log location for dir.
func eventLogPath(dir string) (string, error) {
	sc, err := config.LoadConfig(dir)
	if err != nil {
		// Broken server files do not matter here.
		var collection *config.ConfigurationErrorCollection
		if !errors.As(err, &collection) {
			return "", fmt.Errorf("failed to load configuration from %s: %w", dir, err)
		}
	}
	if sc.Persistence.EventLogPath == "" {
		return "", fmt.Errorf("no event log configured in %s: set persistence.eventLogPath or pass --file", dir)
	}
	return config.ResolvePath(dir, sc.Persistence.EventLogPath), nil
}

// buildEventFilter turns the command-line filters into an events.Filter.
func buildEventFilter(server string, types []string, since string, limit int, now time.Time) (events.Filter, error) {
	filter := events.Filter{ServerName: server, Limit: limit}
	for _, t := range types {
		filter.Types = append(filter.Types, api.EventType(t))
	}
	if limit < 0 {
		return events.Filter{}, fmt.Errorf("--limit must not be negative")
	}
	if since == "" {
		return filter, nil
	}
	if d, err := time.ParseDuration(since); err == nil {
		filter.Since = now.Add(-d)
		return filter, nil
	}
	ts, err := time.Parse(time.RFC3339, since)
	if err != nil {
		return events.Filter{}, fmt.Errorf("invalid --since %q: use a duration like 1h or an RFC3339 time", since)
	}
	filter.Since = ts
	return filter, nil
}

func init() {
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().StringVarP(&eventsOutputFormat, "output", "o", "table", "Output format (table, json, yaml)")
	eventsCmd.Flags().BoolVarP(&eventsQuiet, "quiet", "q", false, "Suppress non-essential output")
	eventsCmd.Flags().StringVar(&eventsFile, "file", "", "Event log to read instead of persistence.eventLogPath")
	eventsCmd.Flags().StringVar(&eventsServer, "server", "", "Filter by server name")
	eventsCmd.Flags().StringSliceVar(&eventsTypes, "type", nil, "Filter by event type (repeatable)")
	eventsCmd.Flags().StringVar(&eventsSince, "since", "", "Show events after this time (e.g., 1h, 30m, 2024-01-15T10:00:00Z)")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 50, "Limit number of events returned")
	eventsCmd.Flags().BoolVarP(&eventsFollow, "follow", "f", false, "Stream new events from a running switchyard")
	eventsCmd.Flags().StringVar(&eventsAddress, "address", "", "Address of a running switchyard for --follow (default metrics.listenAddress)")
}
