package logger

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/dmvolsky/persona-telegram-bot/pkg/domain"
)

type contextKey string

const conversationKey contextKey = "conversation"

// ContextWithConversation tags ctx with the conversation being processed so
// every log line of the request carries it.
func ContextWithConversation(ctx context.Context, key domain.ConversationKey) context.Context {
	return context.WithValue(ctx, conversationKey, key)
}

func ConversationFromContext(ctx context.Context) (domain.ConversationKey, bool) {
	key, ok := ctx.Value(conversationKey).(domain.ConversationKey)
	return key, ok
}

// Err is the attribute used for errors everywhere in this codebase.
func Err(err error) slog.Attr {
	return slog.Any("err", err)
}

type Options struct {
	// Level is the minimum level to log; records below it are discarded.
	Level slog.Leveler

	// TimeFormat is the record time format.
	TimeFormat string

	// NoColor disables ANSI colors.
	NoColor bool
}

var DefaultOptions = &Options{
	Level:      slog.LevelDebug,
	TimeFormat: time.DateTime,
}

// Handler is a compact colored slog handler for terminal output.
type Handler struct {
	groups []string
	attrs  []slog.Attr
	opts   Options

	mu  *sync.Mutex
	out io.Writer
}

// NewHandler creates a Handler writing to out. A nil opts uses
// [DefaultOptions].
func NewHandler(out io.Writer, opts *Options) *Handler {
	h := &Handler{out: out, mu: &sync.Mutex{}}
	if opts == nil {
		h.opts = *DefaultOptions
	} else {
		h.opts = *opts
	}
	return h
}

func (h *Handler) clone() *Handler {
	return &Handler{
		groups: h.groups,
		attrs:  h.attrs,
		opts:   h.opts,
		mu:     h.mu,
		out:    h.out,
	}
}

// Enabled implements slog.Handler.Enabled .
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

// Handle implements slog.Handler.Handle .
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	var bf bytes.Buffer

	paint := func(c *color.Color, s string) string {
		if h.opts.NoColor {
			return s
		}
		return c.Sprint(s)
	}

	if !r.Time.IsZero() {
		fmt.Fprint(&bf, paint(color.New(color.Faint), r.Time.Format(h.opts.TimeFormat)))
		fmt.Fprint(&bf, " ")
	}

	switch r.Level {
	case slog.LevelDebug:
		fmt.Fprint(&bf, paint(color.New(color.BgCyan, color.FgHiWhite), "DEBUG"))
	case slog.LevelInfo:
		fmt.Fprint(&bf, paint(color.New(color.BgGreen, color.FgHiWhite), "INFO "))
	case slog.LevelWarn:
		fmt.Fprint(&bf, paint(color.New(color.BgYellow, color.FgHiWhite), "WARN "))
	case slog.LevelError:
		fmt.Fprint(&bf, paint(color.New(color.BgRed, color.FgHiWhite), "ERROR"))
	}
	fmt.Fprint(&bf, " ")

	if key, ok := ConversationFromContext(ctx); ok {
		fmt.Fprint(&bf, paint(color.New(color.FgMagenta), key.String()))
		fmt.Fprint(&bf, " ")
	}

	fmt.Fprint(&bf, r.Message)

	var attrs []slog.Attr
	attrs = append(attrs, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)
		return true
	})

	for _, a := range attrs {
		fmt.Fprint(&bf, " ")
		for _, g := range h.groups {
			fmt.Fprint(&bf, paint(color.New(color.FgCyan), g+"."))
		}
		if a.Key == "err" {
			fmt.Fprint(&bf, paint(color.New(color.FgRed), a.Key+"=")+a.Value.String())
		} else {
			fmt.Fprint(&bf, paint(color.New(color.FgCyan), a.Key+"=")+a.Value.String())
		}
	}

	fmt.Fprint(&bf, "\n")

	h.mu.Lock()
	_, err := h.out.Write(bf.Bytes())
	h.mu.Unlock()

	return err
}

// WithGroup implements slog.Handler.WithGroup .
func (h *Handler) WithGroup(name string) slog.Handler {
	h2 := h.clone()
	h2.groups = append(h2.groups, name)
	return h2
}

// WithAttrs implements slog.Handler.WithAttrs .
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := h.clone()
	h2.attrs = append(h2.attrs, attrs...)
	return h2
}
