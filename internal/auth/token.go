package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// Verifier turns a raw bearer token into a Caller.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (Caller, error)
}

// ExtractTokenFromRequest reads "Authorization: Bearer <token>", falling back to the
// access_token query parameter for EventSource clients that cannot set headers.
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if qt := r.URL.Query().Get("access_token"); qt != "" {
			return qt, nil
		}
		return "", errors.New("authorization header is missing")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}
	return parts[1], nil
}

type Claims struct {
	UserID       string `json:"userId"`
	RestaurantID string `json:"restaurantId,omitempty"`
	Role         Role   `json:"role"`
	jwt.RegisteredClaims
}

// JWTVerifier accepts HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	Secret []byte
}

func (v JWTVerifier) Verify(_ context.Context, rawToken string) (Caller, error) {
	if len(v.Secret) == 0 {
		return Caller{}, errors.New("jwt secret not configured")
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (any, error) {
		return v.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Caller{}, fmt.Errorf("failed to parse token: %w", err)
	}

	return callerFromClaims(claims.UserID, claims.RestaurantID, claims.Role)
}

// IssueToken signs a staff token; used by the dev token tool and tests.
func IssueToken(secret []byte, c Caller, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:       c.UserID,
		RestaurantID: c.RestaurantID,
		Role:         c.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// OIDCVerifier validates tokens from an external identity provider. The provider must
// put restaurant_id and role into the token.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func NewOIDCVerifier(ctx context.Context, issuer string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("create OIDC provider: %w", err)
	}
	return &OIDCVerifier{verifier: provider.Verifier(&oidc.Config{SkipClientIDCheck: true})}, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (Caller, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return Caller{}, fmt.Errorf("invalid token: %w", err)
	}

	var claims struct {
		Sub          string `json:"sub"`
		RestaurantID string `json:"restaurant_id"`
		Role         Role   `json:"role"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return Caller{}, fmt.Errorf("failed to parse claims: %w", err)
	}
	return callerFromClaims(claims.Sub, claims.RestaurantID, claims.Role)
}

func callerFromClaims(userID, restaurantID string, role Role) (Caller, error) {
	if userID == "" {
		return Caller{}, errors.New("subject claim not found in token")
	}
	if !role.Valid() {
		return Caller{}, fmt.Errorf("unknown role %q", role)
	}
	if role != RoleSuperAdmin && restaurantID == "" {
		return Caller{}, errors.New("restaurant claim required for non super-admin")
	}
	return Caller{UserID: userID, RestaurantID: restaurantID, Role: role}, nil
}
