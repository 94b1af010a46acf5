package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"

	"github.com/driftwatch/driftwatch/internal/types"
)

// Channel is a uniform alert sink. Send failures are returned to the
// manager, which logs them and continues with the remaining channels;
// a failing channel never blocks the others.
type Channel interface {
	// Name identifies the channel in logs and config ("log", "file", ...)
	Name() string

	// Send delivers one alert. Blocking sends must honor ctx.
	Send(ctx context.Context, a types.Alert) error
}

// formatText renders the plain-text form used by the log and email channels.
func formatText(a types.Alert) string {
	return fmt.Sprintf("[%s] %s\n%s\nSource: %s",
		strings.ToUpper(string(a.Severity)), a.Title, a.Description, a.Source)
}

// formatHTML renders the HTML form used by the email channel.
func formatHTML(a types.Alert) string {
	return fmt.Sprintf(`<div style="border: 1px solid #ccc; padding: 10px; margin: 10px;">
<h3 style="color: %s;">[%s] %s</h3>
<p>%s</p>
<p><small>Source: %s | Time: %s</small></p>
</div>`,
		severityHexColor(a.Severity),
		strings.ToUpper(string(a.Severity)), a.Title,
		a.Description,
		a.Source, a.Timestamp.Format("2006-01-02 15:04:05"))
}

func severityHexColor(sev types.Severity) string {
	switch sev {
	case types.SeverityWarning:
		return "#ffc107"
	case types.SeverityError:
		return "#dc3545"
	case types.SeverityCritical:
		return "#6c1e2c"
	case types.SeverityInfo:
		return "#17a2b8"
	default:
		return "#6c757d"
	}
}

// LogChannel writes alerts to the structured log at the matching level.
type LogChannel struct{}

func (LogChannel) Name() string { return "log" }

func (LogChannel) Send(_ context.Context, a types.Alert) error {
	ev := log.Info()
	switch a.Severity {
	case types.SeverityCritical, types.SeverityError:
		ev = log.Error()
	case types.SeverityWarning:
		ev = log.Warn()
	}
	ev.Str("alert_id", a.AlertID).
		Str("severity", string(a.Severity)).
		Str("category", a.Category).
		Str("source", a.Source).
		Msg(formatText(a))
	return nil
}

// FileChannel appends one JSON alert per line to a log file. The file is
// opened per send so it stays safely tailable and survives rotation.
type FileChannel struct {
	mu   sync.Mutex
	path string
}

// NewFileChannel creates the channel, ensuring the parent directory exists.
func NewFileChannel(path string) (*FileChannel, error) {
	if path == "" {
		return nil, fmt.Errorf("file channel requires a path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating alert file directory: %w", err)
	}
	return &FileChannel{path: path}, nil
}

func (c *FileChannel) Name() string { return "file" }

func (c *FileChannel) Send(_ context.Context, a types.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshaling alert %s: %w", a.AlertID, err)
	}

	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening alert file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing alert file: %w", err)
	}
	return nil
}

// ConsoleChannel renders a human-readable panel.
type ConsoleChannel struct {
	// Out defaults to stdout
	Out io.Writer
}

func NewConsoleChannel() *ConsoleChannel {
	return &ConsoleChannel{Out: os.Stdout}
}

func (c *ConsoleChannel) Name() string { return "console" }

func (c *ConsoleChannel) Send(_ context.Context, a types.Alert) error {
	out := c.Out
	if out == nil {
		out = os.Stdout
	}

	header := color.New(severityColor(a.Severity), color.Bold).
		Sprintf("%s: %s", strings.ToUpper(string(a.Severity)), a.Title)

	fmt.Fprintf(out, "┌─ %s\n", header)
	for _, line := range strings.Split(a.Description, "\n") {
		fmt.Fprintf(out, "│ %s\n", line)
	}
	fmt.Fprintf(out, "└─ Source: %s | %s\n", a.Source, a.Timestamp.Format("2006-01-02 15:04:05"))
	return nil
}

func severityColor(sev types.Severity) color.Attribute {
	switch sev {
	case types.SeverityWarning:
		return color.FgYellow
	case types.SeverityError, types.SeverityCritical:
		return color.FgRed
	default:
		return color.FgBlue
	}
}
