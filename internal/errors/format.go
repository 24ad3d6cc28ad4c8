package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// FormatForCLI formats an error for CLI output.
// Uses a concise format suitable for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	var me *ModeError
	if !errors.As(err, &me) {
		me = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Error: %s\n", me.Message))

	if me.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  Hint: %s\n", me.Suggestion))
	}

	sb.WriteString(fmt.Sprintf("  Code: %s\n", me.Code))

	return sb.String()
}

// FormatForLog formats an error for structured logging.
// Returns slog attributes; plain errors yield a single "error" attribute.
func FormatForLog(err error) []any {
	if err == nil {
		return nil
	}

	var me *ModeError
	if !errors.As(err, &me) {
		return []any{slog.String("error", err.Error())}
	}

	attrs := []any{
		slog.String("error_code", me.Code),
		slog.String("error", me.Message),
		slog.String("category", string(me.Category)),
		slog.String("severity", string(me.Severity)),
	}
	if me.Cause != nil {
		attrs = append(attrs, slog.String("cause", me.Cause.Error()))
	}
	for k, v := range me.Details {
		attrs = append(attrs, slog.String("detail_"+k, v))
	}
	return attrs
}
