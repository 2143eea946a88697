package auth

import (
	"context"
	"net/http"

	"torashaout/internal/apperrors"
	"torashaout/internal/logger"
	"torashaout/internal/models"
	"torashaout/internal/utils"
)

type contextKey string

const callerKey contextKey = "caller"

// Middleware attaches the verified caller to the request context. Requests without
// an Authorization header pass through anonymous so each operation decides whether
// it needs a caller; a header that fails verification is rejected here.
func Middleware(verifier Verifier, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}

			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				log.LogSecurity("AUTH", err.Error())
				utils.WriteError(w, log, apperrors.ErrUnauthenticated.WithMessage("Invalid Authorization header"))
				return
			}

			caller, err := verifier.Verify(r.Context(), rawToken)
			if err != nil {
				log.LogSecurity("AUTH", "token rejected: "+err.Error())
				utils.WriteError(w, log, apperrors.ErrUnauthenticated.WithMessage("Invalid or expired token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

func WithCaller(ctx context.Context, caller models.Caller) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// CallerFrom returns the request's caller, the zero Caller when anonymous.
func CallerFrom(ctx context.Context) models.Caller {
	if c, ok := ctx.Value(callerKey).(models.Caller); ok {
		return c
	}
	return models.Caller{}
}
