package formatting

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"switchyard/internal/api"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// TableFormatter provides rich table output formatting
type TableFormatter struct {
	options Options
}

// NewTableFormatter creates a new table formatter
func NewTableFormatter(options Options) Formatter {
	return &TableFormatter{
		options: options,
	}
}

// FormatCatalog renders the configured servers without runtime state.
func (f *TableFormatter) FormatCatalog(servers []api.ServerDescriptor) error {
	if len(servers) == 0 {
		f.printEmptyMessage("📋", "No servers configured")
		return nil
	}

	t := f.createTable()
	t.AppendHeader(header("NAME", "EXECUTABLE", "ENDPOINT", "PROTOCOL", "CAPABILITIES", "AUTO START"))
	for _, s := range servers {
		protocol := s.Protocol
		if protocol == "" {
			protocol = api.ProtocolJSON
		}
		autoStart := text.FgHiGreen.Sprint("yes")
		if !s.AutoStart {
			autoStart = text.FgHiBlack.Sprint("no")
		}
		t.AppendRow(table.Row{
			text.Bold.Sprint(s.Name),
			truncate(strings.TrimSpace(s.ExecutablePath+" "+strings.Join(s.Args, " ")), 60),
			s.Endpoint + s.Path,
			string(protocol),
			truncate(strings.Join(s.Capabilities, ", "), 60),
			autoStart,
		})
	}
	t.Render()

	if !f.options.Quiet {
		f.printf("\n%s %s %s\n",
			text.FgHiBlue.Sprint("Total:"),
			text.FgHiWhite.Sprint(len(servers)),
			text.FgHiBlue.Sprint("servers"))
	}
	return nil
}

// FormatStatus renders one row per server followed by a fleet summary.
func (f *TableFormatter) FormatStatus(status api.EcosystemStatus) error {
	if len(status.Servers) == 0 {
		f.printEmptyMessage("📋", "No servers registered")
		return nil
	}

	t := f.createTable()
	t.AppendHeader(header("NAME", "STATUS", "PID", "PROTOCOL", "CAPABILITIES", "ERRORS", "RESTARTS", "AVG MS", "LAST CHECK"))

	for _, s := range status.Servers {
		pid := "-"
		if s.PID > 0 {
			pid = fmt.Sprintf("%d", s.PID)
		}
		restarts := fmt.Sprintf("%d", s.RestartAttempts)
		if s.RestartPinned {
			restarts += " (pinned)"
		}
		avg := "-"
		if v, ok := s.Metric(api.MetricResponseTimeMs); ok {
			avg = fmt.Sprintf("%.0f", v)
		}
		lastCheck := "-"
		if s.LastHealthCheck != nil {
			lastCheck = s.LastHealthCheck.Format(time.TimeOnly)
		}

		t.AppendRow(table.Row{
			text.Bold.Sprint(s.Name),
			statusColor(s.Status).Sprint(string(s.Status)),
			pid,
			string(s.Protocol),
			truncate(strings.Join(s.Capabilities, ", "), 60),
			fmt.Sprintf("%d/%d", s.ErrorCount, s.TotalErrors),
			restarts,
			avg,
			lastCheck,
		})
	}
	t.Render()

	if f.options.Quiet {
		return nil
	}

	var parts []string
	for _, st := range api.AllStatuses {
		if n := status.ByStatus[st]; n > 0 {
			parts = append(parts, statusColor(st).Sprint(fmt.Sprintf("%d %s", n, strings.ToLower(string(st)))))
		}
	}
	f.printf("\n%s %s (%s), health %.0f%%\n",
		text.FgHiBlue.Sprint("Total:"),
		text.FgHiWhite.Sprint(status.Total),
		strings.Join(parts, ", "),
		status.HealthRatio*100)

	r := status.Routing
	if r.TotalRequests > 0 {
		f.printf("%s %d requests, %d succeeded, %d failed, %d via fallback, avg %s\n",
			text.FgHiBlue.Sprint("Routing:"),
			r.TotalRequests, r.Succeeded, r.Failed, r.FallbacksUsed, r.AverageLatency.Round(time.Millisecond))
	}
	return nil
}

// FormatFleetResult renders the per-server outcome of a fleet operation.
func (f *TableFormatter) FormatFleetResult(title string, result api.FleetResult) error {
	if len(result.Results) == 0 {
		f.printEmptyMessage("📋", "No servers to "+title)
		return nil
	}

	t := f.createTable()
	t.SetTitle(title)
	t.AppendHeader(header("NAME", "RESULT", "STATUS", "DURATION", "ERROR"))
	for _, r := range result.Results {
		outcome := text.FgHiGreen.Sprint("ok")
		if !r.Success {
			outcome = text.FgHiRed.Sprint("failed")
		}
		t.AppendRow(table.Row{
			text.Bold.Sprint(r.Name),
			outcome,
			statusColor(r.Status).Sprint(string(r.Status)),
			r.Duration.Round(time.Millisecond),
			truncate(r.Error, 80),
		})
	}
	t.Render()

	if !f.options.Quiet {
		f.printf("\n%s %d succeeded, %d failed in %s\n",
			text.FgHiBlue.Sprint("Summary:"),
			len(result.Succeeded), len(result.Failed), result.Duration.Round(time.Millisecond))
	}
	return nil
}

// FormatExecutionResult renders the routing decision, each attempt and the content.
func (f *TableFormatter) FormatExecutionResult(result api.ExecutionResult) error {
	summary := f.createTable()
	summary.SetTitle("Request " + result.RequestID)

	outcome := text.FgHiGreen.Sprint("success")
	if !result.Success {
		outcome = text.FgHiRed.Sprint("failed")
	}
	d := result.Decision
	summary.AppendRows([]table.Row{
		{key("Result"), outcome},
		{key("Category"), string(d.Category)},
		{key("Target"), orDash(d.TargetServer)},
		{key("Fallbacks"), orDash(strings.Join(d.FallbackServers, ", "))},
		{key("Confidence"), fmt.Sprintf("%.2f", d.ConfidenceScore)},
		{key("Degraded"), d.Degraded},
		{key("Reasoning"), truncate(d.Reasoning, 100)},
		{key("Served by"), orDash(result.ServedBy)},
		{key("Duration"), result.Duration.Round(time.Millisecond)},
	})
	if result.UsedFallback() {
		summary.AppendRow(table.Row{key("Fallback used"), result.FallbackUsed})
	}
	if result.Error != "" {
		summary.AppendRow(table.Row{key("Error"), text.FgHiRed.Sprint(fmt.Sprintf("%s: %s", result.ErrorKind, truncate(result.Error, 100)))})
	}
	summary.Render()

	if len(result.Attempts) > 0 {
		attempts := f.createTable()
		attempts.SetTitle("Attempts")
		attempts.AppendHeader(header("#", "SERVER", "RESULT", "DURATION", "ERROR"))
		for i, a := range result.Attempts {
			res := text.FgHiGreen.Sprint("ok")
			if !a.Success {
				res = text.FgHiRed.Sprint(string(a.Kind))
			}
			attempts.AppendRow(table.Row{i + 1, a.Server, res, a.Duration.Round(time.Millisecond), truncate(a.Error, 80)})
		}
		attempts.Render()
	}

	if len(result.Content) > 0 {
		f.printf("\n%s\n", text.FgHiCyan.Sprint("Content:"))
		for _, c := range result.Content {
			if s, ok := c.(string); ok {
				f.printf("%s\n", s)
				continue
			}
			f.printf("%s\n", PrettyJSON(c))
		}
	}
	return nil
}

// FormatEvents renders events in the order given.
func (f *TableFormatter) FormatEvents(events []api.OrchestrationEvent) error {
	if len(events) == 0 {
		f.printEmptyMessage("📋", "No events found")
		return nil
	}

	t := f.createTable()
	t.AppendHeader(header("TIME", "EVENT", "SERVER", "DETAILS"))
	for _, e := range events {
		t.AppendRow(table.Row{
			e.Timestamp.Local().Format(time.DateTime),
			eventColor(e.Type).Sprint(string(e.Type)),
			orDash(e.ServerName),
			truncate(compactPayload(e.Payload), 80),
		})
	}
	t.Render()

	if !f.options.Quiet {
		f.printf("\n%s %s %s\n",
			text.FgHiBlue.Sprint("Total:"),
			text.FgHiWhite.Sprint(len(events)),
			text.FgHiBlue.Sprint("events"))
	}
	return nil
}

// FormatEventLine prints one event as a line with the same columns as FormatEvents.
func (f *TableFormatter) FormatEventLine(e api.OrchestrationEvent) error {
	f.printf("%s  %s  %s  %s\n",
		e.Timestamp.Local().Format(time.DateTime),
		eventColor(e.Type).Sprint(string(e.Type)),
		orDash(e.ServerName),
		truncate(compactPayload(e.Payload), 80))
	return nil
}

// createTable creates a new table with standard styling
func (f *TableFormatter) createTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(f.options.Out)
	t.SetStyle(table.StyleRounded)
	return t
}

// printEmptyMessage prints empty result messages
func (f *TableFormatter) printEmptyMessage(icon, message string) {
	f.printf("%s %s\n", text.FgYellow.Sprint(icon), text.FgYellow.Sprint(message))
}

func (f *TableFormatter) printf(format string, args ...interface{}) {
	fmt.Fprintf(f.options.Out, format, args...)
}

func header(names ...string) table.Row {
	row := make(table.Row, len(names))
	for i, n := range names {
		row[i] = text.FgHiCyan.Sprint(n)
	}
	return row
}

func key(s string) string {
	return text.FgHiCyan.Sprint(s)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// compactPayload renders a payload as key=value pairs in key order.
func compactPayload(payload map[string]interface{}) string {
	if len(payload) == 0 {
		return ""
	}
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := payload[k]
		var s string
		switch tv := v.(type) {
		case string:
			s = tv
		default:
			b, err := json.Marshal(tv)
			if err != nil {
				s = fmt.Sprintf("%v", tv)
			} else {
				s = string(b)
			}
		}
		parts = append(parts, k+"="+s)
	}
	return strings.Join(parts, " ")
}

func eventColor(t api.EventType) text.Colors {
	switch t {
	case api.EventServerOnline, api.EventServerRecovered, api.EventRequestCompleted, api.EventFleetStarted:
		return text.Colors{text.FgHiGreen}
	case api.EventServerCrashed, api.EventServerStartFailed, api.EventServerKillFailed,
		api.EventServerRestartExhausted, api.EventRequestFailed:
		return text.Colors{text.FgHiRed}
	case api.EventServerUnhealthy, api.EventServerRestarting, api.EventRequestAttemptFailed:
		return text.Colors{text.FgHiYellow}
	default:
		return text.Colors{text.Reset}
	}
}
