package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/achraflolman/studybox-server/internal/auth"
)

// Issuers we accept tokens from.
var trustedIssuers = map[string]bool{
	"schoolmaps.nl":        true,
	"schoolmaps.localhost": true,
}

// JWTAuth verifies a Bearer token signed with our HMAC secret and stores
// the authenticated user in the request context.
func JWTAuth(secretKey []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, err := authenticateJWT(r.Context(), r.Header, secretKey)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticateJWT(ctx context.Context, reqHeader http.Header, secretKey []byte) (context.Context, error) {
	authHeader := reqHeader.Get("Authorization")
	if authHeader == "" {
		return nil, errors.New("no auth method")
	}

	userToken := strings.TrimPrefix(authHeader, "Bearer ")
	token, err := jwt.Parse(userToken, func(token *jwt.Token) (interface{}, error) {
		// Ensure the signing method is HMAC
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secretKey, nil
	})
	if err != nil {
		log.Err(err).Msg("err-parsing-token")
		return nil, errors.New("could not parse token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	uid, ok := claims["sub"].(string)
	if !ok || uid == "" {
		return nil, errors.New("could not parse uid claim")
	}

	iss, ok := claims["iss"].(string)
	if !ok || !trustedIssuers[iss] {
		return nil, errors.New("unexpected iss claim")
	}

	username, _ := claims["usn"].(string)

	return auth.StoreUserInContext(ctx, uid, username), nil
}

// RequestLogger attaches the global logger to the request context and
// logs each request on the way out.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := log.Logger.WithContext(r.Context())
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		log.Debug().Str("method", r.Method).Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).Msg("request")
	})
}
