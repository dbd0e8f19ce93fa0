package observability

import (
	"context"

	"go.uber.org/zap"
)

// loggerHolder lets inner middleware enrich the logger used for the completion line.
type loggerHolder struct {
	logger *zap.Logger
}

type holderKey struct{}

func withLoggerHolder(ctx context.Context, holder *loggerHolder) context.Context {
	return context.WithValue(ctx, holderKey{}, holder)
}

func loggerHolderFrom(ctx context.Context) (*loggerHolder, bool) {
	holder, ok := ctx.Value(holderKey{}).(*loggerHolder)
	return holder, ok && holder != nil
}
