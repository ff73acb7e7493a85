package auth

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ms-tableside/internal/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func TestCapabilities(t *testing.T) {
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleKitchen, PermClaimOrders, true},
		{RoleServer, PermProcessPayments, true},
		{RoleStaff, PermReleaseAnyTable, false},
		{RoleServer, PermReleaseAnyTable, false},
		{RoleRestaurantAdmin, PermReleaseAnyTable, true},
		{RoleSuperAdmin, PermViewStats, true},
		{Role("CUSTOMER"), PermViewTables, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role)+" "+string(tt.perm), func(t *testing.T) {
			assert.Equal(t, tt.want, Caller{Role: tt.role}.Can(tt.perm))
		})
	}
}

func TestOwnsRestaurant(t *testing.T) {
	assert.True(t, Caller{Role: RoleStaff, RestaurantID: "r1"}.OwnsRestaurant("r1"))
	assert.False(t, Caller{Role: RoleStaff, RestaurantID: "r1"}.OwnsRestaurant("r2"))
	assert.False(t, Caller{Role: RoleStaff}.OwnsRestaurant(""))
	assert.True(t, Caller{Role: RoleSuperAdmin}.OwnsRestaurant("r2"))
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	in := Caller{UserID: "u1", RestaurantID: "r1", Role: RoleKitchen}
	tok, err := IssueToken(secret, in, time.Hour)
	require.NoError(t, err)

	out, err := JWTVerifier{Secret: secret}.Verify(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestVerifyRejects(t *testing.T) {
	expired, err := IssueToken(secret, Caller{UserID: "u1", RestaurantID: "r1", Role: RoleStaff}, -time.Minute)
	require.NoError(t, err)

	wrongKey, err := IssueToken([]byte("other"), Caller{UserID: "u1", RestaurantID: "r1", Role: RoleStaff}, time.Hour)
	require.NoError(t, err)

	badRole, err := IssueToken(secret, Caller{UserID: "u1", RestaurantID: "r1", Role: "WIZARD"}, time.Hour)
	require.NoError(t, err)

	noTenant, err := IssueToken(secret, Caller{UserID: "u1", Role: RoleServer}, time.Hour)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u1", Role: RoleSuperAdmin}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	v := JWTVerifier{Secret: secret}
	for name, tok := range map[string]string{
		"expired": expired, "wrong key": wrongKey, "bad role": badRole, "no tenant": noTenant, "alg none": none,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tok)
			assert.Error(t, err)
		})
	}
}

func TestMiddlewareSetsCaller(t *testing.T) {
	tok, err := IssueToken(secret, Caller{UserID: "u1", RestaurantID: "r1", Role: RoleServer}, time.Hour)
	require.NoError(t, err)

	var got Caller
	h := Middleware(JWTVerifier{Secret: secret}, logger.NewWithWriter(&bytes.Buffer{}))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, _ = CallerFrom(r.Context())
		}))

	req := httptest.NewRequest(http.MethodGet, "/api/tables", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, RoleServer, got.Role)
}

func TestMiddlewareAcceptsQueryTokenForStreams(t *testing.T) {
	tok, err := IssueToken(secret, Caller{UserID: "u1", RestaurantID: "r1", Role: RoleKitchen}, time.Hour)
	require.NoError(t, err)

	h := Middleware(JWTVerifier{Secret: secret}, logger.NewWithWriter(&bytes.Buffer{}))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events?access_token="+tok, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewareRejectsMissingAndMalformed(t *testing.T) {
	h := Middleware(JWTVerifier{Secret: secret}, logger.NewWithWriter(&bytes.Buffer{}))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not run")
		}))

	for _, header := range []string{"", "Token abc", "Bearer not-a-jwt"} {
		req := httptest.NewRequest(http.MethodGet, "/api/tables", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
	}
}
