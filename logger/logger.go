package logger

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

var output = os.Stderr

// SetOutput directs log lines to stderr, stdout, or a file path.
func SetOutput(where string) {
	switch where {
	case "stderr", "":
		output = os.Stderr
	case "stdout":
		output = os.Stdout
	default:
		file, err := os.OpenFile(where, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintln(os.Stderr, "logger.SetOutput:", err)
			return
		}
		output = file
	}
}

type unitKeyType struct{}

var unitKey unitKeyType

// SetUnit attaches identifying keys (language, segment id, chunk index) to the
// context so that every error names the unit that must be re-run.
func SetUnit(ctx context.Context, keys ...any) context.Context {
	var parts []string
	for _, k := range keys {
		parts = append(parts, fmt.Sprint(k))
	}
	return context.WithValue(ctx, unitKey, strings.Join(parts, "/"))
}

func unitOf(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	unit, _ := ctx.Value(unitKey).(string)
	return unit
}

func Error(ctx context.Context, code int, err error, messages ...any) *Status {
	status := &Status{Code: code, Err: err, Message: join(messages), Unit: unitOf(ctx)}
	writeLine("ERROR", status.String())
	return status
}

func ErrorNoErr(ctx context.Context, code int, messages ...any) *Status {
	status := &Status{Code: code, Message: join(messages), Unit: unitOf(ctx)}
	writeLine("ERROR", status.String())
	return status
}

func Warn(ctx context.Context, messages ...any) {
	writeLine("WARN", prefixUnit(ctx, join(messages)))
}

func Info(ctx context.Context, messages ...any) {
	writeLine("INFO", prefixUnit(ctx, join(messages)))
}

func Debug(ctx context.Context, messages ...any) {
	writeLine("DEBUG", prefixUnit(ctx, join(messages)))
}

// ExecError handles one stderr line from a subprocess. Lines that look like real
// failures become a Status; progress chatter is logged as a warning and dropped.
func ExecError(ctx context.Context, code int, line string) *Status {
	if strings.Contains(line, "Error") || strings.Contains(line, "error:") ||
		strings.Contains(line, "Traceback") || strings.Contains(line, "Exception") {
		return ErrorNoErr(ctx, code, line)
	}
	Warn(ctx, line)
	return nil
}

func prefixUnit(ctx context.Context, msg string) string {
	unit := unitOf(ctx)
	if unit == "" {
		return msg
	}
	return unit + " " + msg
}

func join(messages []any) string {
	var parts []string
	for _, m := range messages {
		parts = append(parts, fmt.Sprint(m))
	}
	return strings.Join(parts, " ")
}

func writeLine(level string, msg string) {
	fmt.Fprintf(output, "%s %s %s\n", time.Now().Format("2006-01-02 15:04:05"), level, msg)
}
