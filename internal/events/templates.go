package events

import (
	"bytes"
	"fmt"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"switchyard/internal/api"
)

// MessageTemplateEngine renders human-readable messages for orchestration events.
// Templates see the event as {{.Server}}, {{.Type}} and {{.Payload}}, plus the sprig
// function library.
type MessageTemplateEngine struct {
	mu        sync.RWMutex
	templates map[api.EventType]*template.Template
}

type templateData struct {
	Server  string
	Type    api.EventType
	Payload map[string]interface{}
}

// NewMessageTemplateEngine creates an engine loaded with the default templates.
func NewMessageTemplateEngine() *MessageTemplateEngine {
	e := &MessageTemplateEngine{templates: make(map[api.EventType]*template.Template)}
	for eventType, text := range defaultTemplates {
		if err := e.SetTemplate(eventType, text); err != nil {
			panic(fmt.Sprintf("invalid default template for %s: %v", eventType, err))
		}
	}
	return e
}

var defaultTemplates = map[api.EventType]string{
	api.EventServerRegistered:       `Server {{.Server}} registered with capabilities [{{ .Payload.capabilities | join ", " }}]`,
	api.EventServerStarting:         `Server {{.Server}} is starting{{with .Payload.attempt}} (restart attempt {{.}}){{end}}`,
	api.EventServerOnline:           `Server {{.Server}} is online{{with .Payload.pid}} (pid {{.}}){{end}}`,
	api.EventServerStartFailed:      `Server {{.Server}} failed to start: {{ .Payload.error | default "unknown error" }}`,
	api.EventServerStopped:          `Server {{.Server}} stopped{{if .Payload.forced}} after kill{{end}}`,
	api.EventServerKillFailed:       `Server {{.Server}} could not be killed: {{ .Payload.error | default "unknown error" }}`,
	api.EventServerCrashed:          `Server {{.Server}} exited unexpectedly{{with .Payload.error}}: {{.}}{{end}}`,
	api.EventServerUnhealthy:        `Server {{.Server}} is unhealthy after {{ .Payload.streak | default 0 }} failed probes`,
	api.EventServerRecovered:        `Server {{.Server}} answered its health probe again`,
	api.EventServerRestarting:       `Restarting server {{.Server}} (attempt {{.Payload.attempt}}/{{.Payload.maxAttempts}}) in {{.Payload.backoff}}`,
	api.EventServerRestartExhausted: `Giving up on server {{.Server}} after {{.Payload.attempts}} restart attempts`,
	api.EventServerMaintenance:      `Server {{.Server}} maintenance {{ if .Payload.enabled }}enabled{{ else }}disabled{{ end }}`,
	api.EventRequestRouted:          `Request {{.Payload.requestId}} ({{.Payload.category}}) routed to {{.Server}} with confidence {{ printf "%.2f" (.Payload.confidence | float64) }}`,
	api.EventRequestCompleted:       `Request {{.Payload.requestId}} served by {{.Server}}{{with .Payload.fallbackUsed}} via fallback{{end}}`,
	api.EventRequestAttemptFailed:   `Request {{.Payload.requestId}} failed on {{.Server}}: {{ .Payload.error | default "unknown error" }}`,
	api.EventRequestFailed:          `Request {{.Payload.requestId}} failed: {{ .Payload.error | default "unknown error" }}`,
	api.EventFleetStarted:           `Fleet started: {{ .Payload.succeeded | len }} online, {{ .Payload.failed | len }} failed`,
	api.EventFleetShutdown:          `Fleet shut down: {{ .Payload.stopped | len }} servers stopped`,
}

// SetTemplate replaces the template for an event type.
func (e *MessageTemplateEngine) SetTemplate(eventType api.EventType, text string) error {
	tmpl, err := template.New(string(eventType)).Funcs(sprig.TxtFuncMap()).Parse(text)
	if err != nil {
		return fmt.Errorf("parse template for %s: %w", eventType, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[eventType] = tmpl
	return nil
}

// Render generates a message for the event. Unknown types and template failures fall
// back to a generic message.
func (e *MessageTemplateEngine) Render(ev api.OrchestrationEvent) string {
	e.mu.RLock()
	tmpl, ok := e.templates[ev.Type]
	e.mu.RUnlock()

	if !ok {
		return fallbackMessage(ev)
	}

	payload := ev.Payload
	if payload == nil {
		payload = map[string]interface{}{}
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, templateData{Server: ev.ServerName, Type: ev.Type, Payload: payload}); err != nil {
		return fallbackMessage(ev)
	}
	return buf.String()
}

func fallbackMessage(ev api.OrchestrationEvent) string {
	if ev.ServerName == "" {
		return fmt.Sprintf("Event: %s", ev.Type)
	}
	return fmt.Sprintf("Event: %s for %s", ev.Type, ev.ServerName)
}
