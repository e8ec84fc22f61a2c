//
// See the file COPYRIGHT for copyright information.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

const (
	reset = "\033[0m"

	lightGray    = 37
	cyan         = 36
	lightYellow  = 93
	lightRed     = 91
	lightMagenta = 95
	darkGray     = 90

	timeFormat = "[15:04:05.000]"
)

func colorize(colorCode int, v string) string {
	return fmt.Sprintf("\033[%sm%s%s", fmt.Sprint(colorCode), v, reset)
}

// Handler writes one line per record: a timestamp, the level and message in
// the level's color, then the attributes as JSON.
type Handler struct {
	h                slog.Handler
	r                func([]string, slog.Attr) slog.Attr
	b                *bytes.Buffer
	m                *sync.Mutex
	writer           io.Writer
	outputEmptyAttrs bool
}

var _ slog.Handler = (*Handler)(nil)

type Option func(h *Handler)

func WithDestinationWriter(writer io.Writer) Option {
	return func(h *Handler) {
		h.writer = writer
	}
}

// WithOutputEmptyAttrs prints "{}" for records without attributes.
func WithOutputEmptyAttrs() Option {
	return func(h *Handler) {
		h.outputEmptyAttrs = true
	}
}

func New(handlerOptions *slog.HandlerOptions, options ...Option) *Handler {
	if handlerOptions == nil {
		handlerOptions = &slog.HandlerOptions{}
	}
	buf := &bytes.Buffer{}
	handler := &Handler{
		b: buf,
		h: slog.NewJSONHandler(buf, &slog.HandlerOptions{
			Level:       handlerOptions.Level,
			AddSource:   handlerOptions.AddSource,
			ReplaceAttr: suppressDefaults(handlerOptions.ReplaceAttr),
		}),
		r:      handlerOptions.ReplaceAttr,
		m:      &sync.Mutex{},
		writer: os.Stderr,
	}
	for _, opt := range options {
		opt(handler)
	}
	return handler
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.h.Enabled(ctx, level)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{h: h.h.WithAttrs(attrs), r: h.r, b: h.b, m: h.m, writer: h.writer, outputEmptyAttrs: h.outputEmptyAttrs}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{h: h.h.WithGroup(name), r: h.r, b: h.b, m: h.m, writer: h.writer, outputEmptyAttrs: h.outputEmptyAttrs}
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	var level string
	levelAttr := slog.Attr{Key: slog.LevelKey, Value: slog.AnyValue(r.Level)}
	if h.r != nil {
		levelAttr = h.r([]string{}, levelAttr)
	}
	if !levelAttr.Equal(slog.Attr{}) {
		level = levelAttr.Value.String() + ":"
	}

	var color int
	switch {
	case r.Level <= slog.LevelDebug:
		color = lightGray
	case r.Level <= slog.LevelInfo:
		color = cyan
	case r.Level <= slog.LevelWarn:
		color = lightYellow
	case r.Level <= slog.LevelError:
		color = lightRed
	default:
		color = lightMagenta
	}

	var timestamp string
	timeAttr := slog.Attr{Key: slog.TimeKey, Value: slog.StringValue(r.Time.Format(timeFormat))}
	if h.r != nil {
		timeAttr = h.r([]string{}, timeAttr)
	}
	if !timeAttr.Equal(slog.Attr{}) {
		timestamp = colorize(darkGray, timeAttr.Value.String())
	}

	attrs, err := h.computeAttrs(ctx, r)
	if err != nil {
		return err
	}
	var attrsAsBytes []byte
	if h.outputEmptyAttrs || len(attrs) > 0 {
		attrsAsBytes, err = json.Marshal(attrs)
		if err != nil {
			return fmt.Errorf("[json.Marshal]: %w", err)
		}
	}

	out := strings.Builder{}
	if len(timestamp) > 0 {
		out.WriteString(timestamp)
		out.WriteString(" ")
	}
	out.WriteString(colorize(color, strings.TrimSpace(level+" "+r.Message)))
	if len(attrsAsBytes) > 0 {
		out.WriteString(" ")
		out.WriteString(colorize(darkGray, string(attrsAsBytes)))
	}
	out.WriteString("\n")

	h.m.Lock()
	defer h.m.Unlock()
	_, err = io.WriteString(h.writer, out.String())
	return err
}

func (h *Handler) computeAttrs(ctx context.Context, r slog.Record) (map[string]any, error) {
	h.m.Lock()
	defer func() {
		h.b.Reset()
		h.m.Unlock()
	}()
	if err := h.h.Handle(ctx, r); err != nil {
		return nil, fmt.Errorf("[Handle]: %w", err)
	}
	var attrs map[string]any
	if err := json.Unmarshal(h.b.Bytes(), &attrs); err != nil {
		return nil, fmt.Errorf("[json.Unmarshal]: %w", err)
	}
	return attrs, nil
}

func suppressDefaults(
	next func([]string, slog.Attr) slog.Attr,
) func([]string, slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) == 0 && (a.Key == slog.TimeKey || a.Key == slog.LevelKey || a.Key == slog.MessageKey) {
			return slog.Attr{}
		}
		if next == nil {
			return a
		}
		return next(groups, a)
	}
}
