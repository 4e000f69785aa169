// Package logging provides the slog handler used by the server: one JSON
// object per line with a stable time/level/msg prefix, readable enough to
// tail and still machine-parseable.
package logging

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Handler is a compact JSON-lines slog.Handler.
type Handler struct {
	w     io.Writer
	mu    *sync.Mutex
	level slog.Leveler

	attrs  []storedAttr
	groups []string
}

// storedAttr remembers the group path that was open when the attr was added,
// so WithGroup only scopes attrs added after it.
type storedAttr struct {
	groups []string
	attr   slog.Attr
}

// NewHandler creates a handler writing one JSON line per record.
func NewHandler(w io.Writer, level slog.Leveler) *Handler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &Handler{w: w, mu: &sync.Mutex{}, level: level}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	when := r.Time
	if when.IsZero() {
		when = time.Now()
	}

	payload := make(map[string]any, 8)
	payload["time"] = when.Format(time.RFC3339)
	payload["level"] = r.Level.String()
	payload["msg"] = r.Message

	for _, sa := range h.attrs {
		putAttr(payload, sa.groups, sa.attr)
	}
	r.Attrs(func(a slog.Attr) bool {
		putAttr(payload, h.groups, a)
		return true
	})

	line, err := json.Marshal(payload)
	if err != nil {
		line = []byte(`{"level":"ERROR","msg":"log record not serializable"}`)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.w.Write(append(line, '\n'))
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append([]storedAttr(nil), h.attrs...)
	for _, a := range attrs {
		clone.attrs = append(clone.attrs, storedAttr{groups: h.groups, attr: a})
	}
	return &clone
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

func putAttr(root map[string]any, groups []string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Key == "" {
		return
	}

	dst := root
	for _, g := range groups {
		child, ok := dst[g].(map[string]any)
		if !ok {
			child = make(map[string]any)
			dst[g] = child
		}
		dst = child
	}

	if a.Value.Kind() == slog.KindGroup {
		child := make(map[string]any)
		for _, ga := range a.Value.Group() {
			putAttr(child, nil, ga)
		}
		dst[a.Key] = child
		return
	}
	dst[a.Key] = attrValue(a.Value)
}

func attrValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	default:
		return v.Any()
	}
}
