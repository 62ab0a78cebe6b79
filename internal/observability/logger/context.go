package logger

import (
	"context"
	"strings"
)

type ctxKey int

const (
	runIDKey ctxKey = iota
	eraKey
)

// WithRun tags ctx with the run id and era every log line of a run carries.
func WithRun(ctx context.Context, runID, era string) context.Context {
	ctx = context.WithValue(ctx, runIDKey, strings.TrimSpace(runID))
	return context.WithValue(ctx, eraKey, strings.TrimSpace(era))
}

func RunIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(runIDKey).(string)
	return v
}

func EraFromContext(ctx context.Context) string {
	v, _ := ctx.Value(eraKey).(string)
	return v
}
