package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"

	"nudgeline/internal/repo"
)

// AuthConfig controls request authentication.
type AuthConfig struct {
	// JWTSecret verifies HS256 bearer tokens. Empty disables bearer auth.
	JWTSecret string
	// AllowLegacyActorHeader accepts X-Actor-Id without credentials. Meant
	// for local development and tests.
	AllowLegacyActorHeader bool
}

// Principal identifies the authenticated caller.
type Principal struct {
	ActorID string
	Source  string // jwt, api-key or header
}

type principalKeyType struct{}

var principalKey principalKeyType

func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

func actorIDFromContext(ctx context.Context) (string, huma.StatusError) {
	p, ok := principalFromContext(ctx)
	if !ok || p.ActorID == "" {
		return "", newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
	}
	return p.ActorID, nil
}

func newAuthMiddleware(basePath string, cfg AuthConfig, r repo.Repo) func(http.Handler) http.Handler {
	healthPath := path.Join(basePath, "health")
	specPath := path.Join(basePath, "openapi.json")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			// only enforce under the API base path; docs stay open
			if !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if req.URL.Path == healthPath || req.URL.Path == specPath {
				next.ServeHTTP(w, req)
				return
			}
			principal, err := authenticate(req, cfg, r)
			if err != nil {
				respondStatusError(w, err)
				return
			}
			next.ServeHTTP(w, req.WithContext(context.WithValue(req.Context(), principalKey, principal)))
		})
	}
}

func authenticate(req *http.Request, cfg AuthConfig, r repo.Repo) (Principal, huma.StatusError) {
	if auth := req.Header.Get("Authorization"); auth != "" {
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok {
			return Principal{}, newAPIError(http.StatusUnauthorized, "unauthorized", "authorization header must use the Bearer scheme", nil)
		}
		if cfg.JWTSecret == "" {
			return Principal{}, newAPIError(http.StatusUnauthorized, "unauthorized", "bearer auth is not configured", nil)
		}
		actorID, err := parseJWT(token, cfg.JWTSecret)
		if err != nil {
			return Principal{}, newAPIError(http.StatusUnauthorized, "unauthorized", "invalid token", nil)
		}
		return Principal{ActorID: actorID, Source: "jwt"}, nil
	}
	if key := req.Header.Get("X-Api-Key"); key != "" {
		stored, err := r.GetAPIKeyByHash(req.Context(), repo.HashAPIKey(key))
		if errors.Is(err, repo.ErrNotFound) {
			return Principal{}, newAPIError(http.StatusUnauthorized, "unauthorized", "unknown api key", nil)
		}
		if err != nil {
			return Principal{}, newAPIError(http.StatusInternalServerError, "internal_error", "api key lookup failed", nil)
		}
		return Principal{ActorID: stored.ActorID, Source: "api-key"}, nil
	}
	if cfg.AllowLegacyActorHeader {
		actor := req.Header.Get("X-Actor-Id")
		if actor == "" {
			actor = "anonymous"
		}
		return Principal{ActorID: actor, Source: "header"}, nil
	}
	return Principal{}, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

func parseJWT(token, secret string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return "", fmt.Errorf("invalid claims")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", fmt.Errorf("token missing sub claim")
	}
	return sub, nil
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	w.Header().Set("Content-Type", "application/json")
	status := http.StatusInternalServerError
	if err != nil {
		status = err.GetStatus()
	}
	w.WriteHeader(status)
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		json.NewEncoder(w).Encode(map[string]any{"error": apiErr.Body})
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"error": apiErrorBody{
		Code:    defaultCodeForStatus(status),
		Message: err.Error(),
	}})
}
