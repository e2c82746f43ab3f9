package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	teamIDKey    contextKey = "team_id"
	userIDKey    contextKey = "user_id"
	requestIDKey contextKey = "request_id"
)

// ParseTokenFromRequest extracts and validates the bearer token, returning its claims.
func ParseTokenFromRequest(r *http.Request, secret []byte) (jwt.MapClaims, error) {
	tokenString := r.Header.Get("Authorization")
	if tokenString == "" {
		return nil, fmt.Errorf("missing token")
	}

	tokenString = strings.TrimPrefix(tokenString, "Bearer ")

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("invalid signing method")
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// JWTAuthMiddleware requires a bearer token carrying a team_id claim.
func JWTAuthMiddleware(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := ParseTokenFromRequest(r, key)
			if err != nil {
				WriteError(w, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}

			teamID, _ := claims["team_id"].(string)
			if teamID == "" {
				WriteError(w, http.StatusUnauthorized, "unauthorized", "token has no team")
				return
			}
			userID, _ := claims["user_id"].(string)

			ctx := context.WithValue(r.Context(), teamIDKey, teamID)
			ctx = context.WithValue(ctx, userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func TeamID(ctx context.Context) string {
	id, _ := ctx.Value(teamIDKey).(string)
	return id
}

func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// WithTeamID scopes ctx to a team without a token.
func WithTeamID(ctx context.Context, teamID string) context.Context {
	return context.WithValue(ctx, teamIDKey, teamID)
}
