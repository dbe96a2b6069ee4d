package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/gookit/color"
)

// Level styles rendered by gookit/color; rendering degrades to plain text
// when the terminal has no color support
var levelStyles = map[slog.Level]color.Style{
	slog.LevelDebug: color.New(color.FgGray),
	slog.LevelInfo:  color.New(color.FgBlue),
	slog.LevelWarn:  color.New(color.FgYellow),
	slog.LevelError: color.New(color.FgRed, color.OpBold),
}

var levelNames = map[slog.Level]string{
	slog.LevelDebug: "DBG",
	slog.LevelInfo:  "INF",
	slog.LevelWarn:  "WRN",
	slog.LevelError: "ERR",
}

// Options configure New
type Options struct {
	Level  slog.Level
	Writer io.Writer // defaults to stdout
	Color  bool
}

// New creates a slog.Logger backed by the ColoredHandler
func New(opts Options) *slog.Logger {
	return slog.New(NewColoredHandler(opts))
}

// ParseLevel maps debug|info|warn|error onto slog levels
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// ColoredHandler implements slog.Handler with one line per record and
// colored level tags
type ColoredHandler struct {
	mu       *sync.Mutex
	writer   io.Writer
	minLevel slog.Level
	color    bool
	attrs    []slog.Attr
	prefix   string
}

// NewColoredHandler creates the handler described by opts
func NewColoredHandler(opts Options) *ColoredHandler {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	return &ColoredHandler{
		mu:       &sync.Mutex{},
		writer:   w,
		minLevel: opts.Level,
		color:    opts.Color,
	}
}

func (h *ColoredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.minLevel
}

func (h *ColoredHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Time.Format("2006-01-02 15:04:05"))
	b.WriteByte(' ')
	b.WriteString(h.levelTag(r.Level))
	b.WriteByte(' ')
	b.WriteString(r.Message)

	for _, attr := range h.attrs {
		writeAttr(&b, "", attr)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.prefix, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.writer, b.String())
	return err
}

func (h *ColoredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, a := range attrs {
		a.Key = h.prefix + a.Key
		clone.attrs = append(clone.attrs, a)
	}
	return &clone
}

func (h *ColoredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

func (h *ColoredHandler) levelTag(level slog.Level) string {
	name, ok := levelNames[level]
	if !ok {
		name = level.String()
	}
	if !h.color {
		return name
	}
	if style, ok := levelStyles[level]; ok {
		return style.Render(name)
	}
	return name
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, inner := range a.Value.Group() {
			writeAttr(b, prefix+a.Key+".", inner)
		}
		return
	}
	fmt.Fprintf(b, " %s%s=%v", prefix, a.Key, a.Value)
}
