package shared

import "context"

type (
	sessionContextKey    struct{}
	authSourceContextKey struct{}
)

// AuthSource names how a request was authenticated.
type AuthSource string

const (
	AuthNone    AuthSource = ""
	AuthSession AuthSource = "session"
	AuthBearer  AuthSource = "bearer"
)

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// ContextWithAuthSource records how the actor was resolved.
func ContextWithAuthSource(ctx context.Context, src AuthSource) context.Context {
	return context.WithValue(ctx, authSourceContextKey{}, src)
}

// AuthSourceFromContext returns AuthNone for anonymous requests.
func AuthSourceFromContext(ctx context.Context) AuthSource {
	src, _ := ctx.Value(authSourceContextKey{}).(AuthSource)
	return src
}
