package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/eventcard/backend/internal/models"
	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type contextKey string

const actorKey contextKey = "actor"

var errInvalidClaims = errors.New("token is missing actor claims")

// AuthMiddleware resolves the bearer token to an actor and stores it in the
// request context. Tokens are issued by the identity provider.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Get token from Authorization header
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		// Extract token
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		actor, err := validateToken(parts[1], viper.GetString("jwt.secret_key"))
		if err != nil {
			log.WithError(err).Debug("[AUTH] rejected token")
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// WithActor returns a copy of ctx carrying actor
func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext returns the actor set by AuthMiddleware
func ActorFromContext(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(models.Actor)
	return actor, ok && actor.ID != ""
}

func validateToken(tokenString, secret string) (models.Actor, error) {
	if secret == "" {
		return models.Actor{}, errors.New("jwt secret not configured")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}), jwt.WithJSONNumber())
	if err != nil || !token.Valid {
		return models.Actor{}, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.Actor{}, errInvalidClaims
	}

	actorID := claimString(claims, "actorId")
	if actorID == "" {
		// older terminals still send userId
		actorID = claimString(claims, "userId")
	}
	role, ok := models.ParseRole(claimString(claims, "role"))
	eventID := claimString(claims, "eventId")
	if actorID == "" || eventID == "" || !ok {
		return models.Actor{}, errInvalidClaims
	}

	return models.Actor{
		ID:      actorID,
		Role:    role,
		EventID: eventID,
	}, nil
}

func claimString(claims jwt.MapClaims, key string) string {
	v, ok := claims[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		// legacy tokens carry numeric user and event ids
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
