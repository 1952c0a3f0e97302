package utils

import (
	"context"
)

type contextKey string

const ContextKeyCorrelationId contextKey = "correlationId"

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(ContextKeyCorrelationId).(string)
	return value, ok
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return context.WithValue(ctx, ContextKeyCorrelationId, correlationId)
}
