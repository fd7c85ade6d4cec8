package web

import (
	"context"

	"github.com/willemschots/webauth/internal/jwt"
)

type ctxKey string

const claimsCtxKey ctxKey = "_claims"

func ctxWithClaims(ctx context.Context, c jwt.Claims) context.Context {
	return context.WithValue(ctx, claimsCtxKey, c)
}

// ClaimsFromContext returns the claims of the authenticated caller.
func ClaimsFromContext(ctx context.Context) (jwt.Claims, bool) {
	c, ok := ctx.Value(claimsCtxKey).(jwt.Claims)
	return c, ok
}
