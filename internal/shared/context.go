package shared

import (
	"context"
	"strconv"
)

type sessionContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// AccountIDFromContext returns the signed-in account id, if any.
func AccountIDFromContext(ctx context.Context) (int64, bool) {
	sess := SessionFromContext(ctx)
	if sess == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(sess.Account(), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
