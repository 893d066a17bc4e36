package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestJWTVerifier_Verify(t *testing.T) {
	verifier := NewJWTVerifier([]string{"old", "current"}, 30*time.Second)
	now := time.Now()

	tests := []struct {
		name     string
		token    string
		wantErr  error
		wantRole Role
	}{
		{
			name:     "role claim",
			token:    signToken(t, "current", jwt.MapClaims{"id": "u1", "email": "a@x.io", "role": "user", "exp": now.Add(time.Hour).Unix()}),
			wantRole: RoleUser,
		},
		{
			name:     "userType claim with first secret",
			token:    signToken(t, "old", jwt.MapClaims{"id": "u1", "userType": "Admin"}),
			wantRole: RoleAdmin,
		},
		{
			name:     "expired within skew",
			token:    signToken(t, "current", jwt.MapClaims{"id": "u1", "role": "user", "exp": now.Add(-10 * time.Second).Unix()}),
			wantRole: RoleUser,
		},
		{
			name:    "expired beyond skew",
			token:   signToken(t, "current", jwt.MapClaims{"id": "u1", "exp": now.Add(-time.Minute).Unix()}),
			wantErr: ErrInvalidToken,
		},
		{
			name:    "unknown secret",
			token:   signToken(t, "other", jwt.MapClaims{"id": "u1"}),
			wantErr: ErrInvalidToken,
		},
		{
			name:    "missing subject",
			token:   signToken(t, "current", jwt.MapClaims{"role": "user"}),
			wantErr: ErrInvalidToken,
		},
		{
			name:    "empty",
			token:   "",
			wantErr: ErrMissingToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := verifier.Verify(tt.token)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id.UserID != "u1" || id.Role != tt.wantRole {
				t.Errorf("unexpected identity: %+v", id)
			}
			if id.Token != tt.token {
				t.Error("identity must carry the raw token")
			}
		})
	}
}

func TestIdentity_Can(t *testing.T) {
	user := &Identity{UserID: "u1", Role: RoleUser}
	admin := &Identity{UserID: "a1", Role: RoleAdmin}
	seller := &Identity{UserID: "s1", Role: RoleSeller}

	if !user.Can(CapPlaceOrder) || user.Can(CapReadAnyOrder) {
		t.Error("unexpected user capabilities")
	}
	if !admin.Can(CapReadAnyOrder) || admin.Can(CapPlaceOrder) {
		t.Error("unexpected admin capabilities")
	}
	if seller.Can(CapPlaceOrder) {
		t.Error("seller must not place orders")
	}
	var none *Identity
	if none.Can(CapPlaceOrder) {
		t.Error("nil identity must not have capabilities")
	}
}

func TestMiddleware_Require(t *testing.T) {
	gin.SetMode(gin.TestMode)
	verifier := NewJWTVerifier([]string{"secret"}, 0)
	mw := NewMiddleware(verifier, "token")

	router := gin.New()
	router.GET("/orders", mw.Require(RoleUser), func(c *gin.Context) {
		id, _ := FromGin(c)
		ctxID, _ := IdentityFromContext(c.Request.Context())
		if ctxID != id {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, id.UserID)
	})

	userToken := signToken(t, "secret", jwt.MapClaims{"id": "u1", "role": "user"})
	sellerToken := signToken(t, "secret", jwt.MapClaims{"id": "s1", "role": "seller"})

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		status int
	}{
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+userToken) }, http.StatusOK},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "token", Value: userToken}) }, http.StatusOK},
		{"access token header", func(r *http.Request) { r.Header.Set("x-access-token", userToken) }, http.StatusOK},
		{"missing", func(r *http.Request) {}, http.StatusUnauthorized},
		{"wrong role", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+sellerToken) }, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/orders", nil)
			tt.setup(req)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Errorf("expected %d, got %d (%s)", tt.status, w.Code, w.Body.String())
			}
		})
	}
}
