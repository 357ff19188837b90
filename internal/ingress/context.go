package ingress

import "context"

type contextKey string

const userContextKey contextKey = "mcphub.user"

// requestUser is the authenticated principal attached to a request context
// by authMiddleware once a JWT has been verified. The skip-auth and bearer
// key tiers attach no user.
type requestUser struct {
	Username string
	Role     string
}

func withUser(ctx context.Context, username, role string) context.Context {
	return context.WithValue(ctx, userContextKey, requestUser{Username: username, Role: role})
}

func userFromContext(ctx context.Context) (requestUser, bool) {
	u, ok := ctx.Value(userContextKey).(requestUser)
	return u, ok
}
