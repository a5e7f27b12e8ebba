package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nikhilbhutani/botfleet/internal/tenant"
)

type Claims struct {
	OrgID string `json:"org_id"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

type JWTMiddleware struct {
	secret []byte
	issuer string
}

func NewJWTMiddleware(secret, issuer string) *JWTMiddleware {
	return &JWTMiddleware{secret: []byte(secret), issuer: issuer}
}

// IssueToken signs an HS256 session token for actor.
func IssueToken(secret, issuer string, actor tenant.Actor, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		OrgID: actor.OrgID.String(),
		Role:  actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID.String(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse validates tokenStr and returns the actor it names.
func (m *JWTMiddleware) Parse(tokenStr string) (tenant.Actor, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return tenant.Actor{}, fmt.Errorf("invalid token: %w", err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return tenant.Actor{}, fmt.Errorf("invalid user ID in token: %w", err)
	}
	orgID, err := uuid.Parse(claims.OrgID)
	if err != nil {
		return tenant.Actor{}, fmt.Errorf("invalid org ID in token: %w", err)
	}
	if !ValidRole(claims.Role) {
		return tenant.Actor{}, fmt.Errorf("invalid role %q in token", claims.Role)
	}
	return tenant.Actor{OrgID: orgID, UserID: userID, Role: claims.Role}, nil
}

func (m *JWTMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := extractBearerToken(r)
		if tokenStr == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		actor, err := m.Parse(tokenStr)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(tenant.WithActor(r.Context(), actor)))
	})
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
