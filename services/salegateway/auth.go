package salegateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const scopeClaim = "scope"

// Scopes understood by the gateway.
const (
	ScopeInvoice = "sale.invoice"
	ScopeAdmin   = "sale.admin"
)

type contextKey string

const contextKeySubject contextKey = "salegateway.subject"

// SubjectFromContext returns the authenticated token subject, if any.
func SubjectFromContext(ctx context.Context) string {
	subject, _ := ctx.Value(contextKeySubject).(string)
	return subject
}

// Authenticator validates bearer tokens signed with a shared HMAC secret.
type Authenticator struct {
	secret   []byte
	issuer   string
	audience string
	skew     time.Duration
}

// NewAuthenticator builds a validator for tokens issued to this gateway.
func NewAuthenticator(secret []byte, issuer, audience string, skew time.Duration) *Authenticator {
	if skew <= 0 {
		skew = 2 * time.Minute
	}
	return &Authenticator{secret: secret, issuer: issuer, audience: audience, skew: skew}
}

// Middleware enforces a valid token carrying every required scope.
func (a *Authenticator) Middleware(requiredScopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				authError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			claims, err := a.parseToken(raw)
			if err != nil {
				authError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			if err := a.validateClaims(claims); err != nil {
				authError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			scopes := extractScopes(claims)
			if !hasScopes(scopes, requiredScopes) {
				authError(w, http.StatusForbidden, "insufficient scope")
				return
			}
			subject, _ := claims["sub"].(string)
			ctx := context.WithValue(r.Context(), contextKeySubject, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractBearer(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func (a *Authenticator) parseToken(raw string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithLeeway(a.skew))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type %T", token.Claims)
	}
	return claims, nil
}

func (a *Authenticator) validateClaims(claims jwt.MapClaims) error {
	if issuer, _ := claims["iss"].(string); issuer != a.issuer {
		return fmt.Errorf("unexpected issuer")
	}
	switch aud := claims["aud"].(type) {
	case string:
		if aud != a.audience {
			return fmt.Errorf("unexpected audience")
		}
	case []interface{}:
		found := false
		for _, entry := range aud {
			if value, ok := entry.(string); ok && value == a.audience {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unexpected audience")
		}
	default:
		return fmt.Errorf("audience claim missing")
	}
	return nil
}

func extractScopes(claims jwt.MapClaims) map[string]struct{} {
	scopes := make(map[string]struct{})
	switch value := claims[scopeClaim].(type) {
	case string:
		for _, scope := range strings.Fields(value) {
			scopes[scope] = struct{}{}
		}
	case []interface{}:
		for _, entry := range value {
			if scope, ok := entry.(string); ok {
				scopes[scope] = struct{}{}
			}
		}
	}
	return scopes
}

func hasScopes(granted map[string]struct{}, required []string) bool {
	for _, scope := range required {
		if _, ok := granted[scope]; !ok {
			return false
		}
	}
	return true
}

func authError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// MintToken issues a signed bearer token for the gateway audience. Operators
// use this through the CLI to provision service credentials.
func MintToken(secret []byte, issuer, audience, subject string, scopes []string, ttl time.Duration, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("signing secret required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	claims := jwt.MapClaims{
		"iss":      issuer,
		"aud":      audience,
		"sub":      subject,
		"iat":      now.Unix(),
		"exp":      now.Add(ttl).Unix(),
		scopeClaim: strings.Join(scopes, " "),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
