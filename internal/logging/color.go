package logging

import (
	"bytes"
	"io"
	"net"
	"strconv"
	"strings"
)

const (
	ansiReset   = "\x1b[0m"
	ansiRed     = "\x1b[31m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
	ansiGray    = "\x1b[90m"
)

// colorLineWriter decorates slog text lines with ANSI colors.
// The base color follows the level; quoted strings, IPs, and numbers get token colors.
type colorLineWriter struct {
	dst io.Writer
}

// Write colorizes one rendered line and forwards it.
// Params: p one slog text record, optionally newline-terminated.
// Returns: len(p) on success so slog sees a full write.
func (w *colorLineWriter) Write(p []byte) (int, error) {
	line := p
	newline := false
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
		newline = true
	}

	fields := splitFields(string(line))
	base := levelColor(fields)
	if base == "" {
		if _, err := w.dst.Write(p); err != nil {
			return 0, err
		}
		return len(p), nil
	}

	var out bytes.Buffer
	out.Grow(len(p) + 64)
	out.WriteString(base)
	for idx, field := range fields {
		if idx > 0 {
			out.WriteByte(' ')
		}
		key, value, ok := strings.Cut(field, "=")
		if !ok || key == "level" {
			out.WriteString(field)
			continue
		}
		out.WriteString(key)
		out.WriteByte('=')
		if color := tokenColor(value); color != "" {
			out.WriteString(color)
			out.WriteString(value)
			out.WriteString(ansiReset)
			out.WriteString(base)
			continue
		}
		out.WriteString(value)
	}
	out.WriteString(ansiReset)
	if newline {
		out.WriteByte('\n')
	}

	if _, err := w.dst.Write(out.Bytes()); err != nil {
		return 0, err
	}
	return len(p), nil
}

// splitFields splits a text record on spaces outside double quotes.
func splitFields(line string) []string {
	fields := make([]string, 0, 8)
	start := 0
	quoted := false
	escaped := false
	for idx := 0; idx < len(line); idx++ {
		switch ch := line[idx]; {
		case escaped:
			escaped = false
		case ch == '\\' && quoted:
			escaped = true
		case ch == '"':
			quoted = !quoted
		case ch == ' ' && !quoted:
			fields = append(fields, line[start:idx])
			start = idx + 1
		}
	}
	return append(fields, line[start:])
}

// levelColor picks the line color from the level field.
// Returns: empty string when the line has no known level.
func levelColor(fields []string) string {
	for _, field := range fields {
		value, ok := strings.CutPrefix(field, "level=")
		if !ok {
			continue
		}
		switch {
		case strings.HasPrefix(value, "DEBUG"):
			return ansiGray
		case strings.HasPrefix(value, "INFO"):
			return ansiBlue
		case strings.HasPrefix(value, "WARN"):
			return ansiMagenta
		case strings.HasPrefix(value, "ERROR"), strings.HasPrefix(value, "PANIC"):
			return ansiRed
		default:
			return ""
		}
	}
	return ""
}

// tokenColor classifies one attribute value.
func tokenColor(value string) string {
	if value == "" {
		return ""
	}
	if strings.HasPrefix(value, `"`) {
		return ansiGreen
	}
	if isIPToken(value) {
		return ansiCyan
	}
	if _, err := strconv.ParseFloat(value, 64); err == nil {
		return ansiYellow
	}
	return ""
}

// isIPToken accepts bare IPs and ip:port pairs.
func isIPToken(value string) bool {
	if net.ParseIP(value) != nil {
		return true
	}
	host, _, err := net.SplitHostPort(value)
	return err == nil && net.ParseIP(host) != nil
}
