package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const alice = "0x00000000000000000000000000000000000000b2"

func testJWT() JWT {
	return JWT{Secret: []byte("0123456789abcdef0123"), TokenTTL: time.Hour, Issuer: "aegis-vault"}
}

func TestSignVerify(t *testing.T) {
	j := testJWT()
	tok, exp, err := j.Sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: alice}})
	if err != nil {
		t.Fatal(err)
	}
	if time.Until(exp) < 59*time.Minute {
		t.Errorf("expiry too early: %s", exp)
	}
	claims, err := j.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != alice || claims.Role != RoleUser || claims.Issuer != "aegis-vault" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestVerify_Rejects(t *testing.T) {
	j := testJWT()
	tok, _, _ := j.Sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: alice}})

	other := testJWT()
	other.Secret = []byte("another-secret-value")
	if _, err := other.Verify(tok); err == nil {
		t.Error("expected signature mismatch")
	}

	foreign := testJWT()
	foreign.Issuer = "someone-else"
	if _, err := foreign.Verify(tok); err == nil {
		t.Error("expected issuer mismatch")
	}

	past := jwt.NewNumericDate(time.Now().Add(-time.Minute))
	expired, _, _ := j.Sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: alice, ExpiresAt: past}})
	if _, err := j.Verify(expired); err == nil {
		t.Error("expected expired token to fail")
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	j := testJWT()
	r := gin.New()
	r.GET("/me", Middleware(j), func(c *gin.Context) {
		p, err := Principal(c)
		if err != nil {
			c.String(http.StatusBadRequest, err.Error())
			return
		}
		c.String(http.StatusOK, p.Hex())
	})
	r.POST("/oracle", Middleware(j), RequireRole(RoleOracle), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	userTok, _, _ := j.Sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: alice}})
	oracleTok, _, _ := j.Sign(Claims{Role: RoleOracle, RegisteredClaims: jwt.RegisteredClaims{Subject: alice}})

	tests := []struct {
		name   string
		method string
		path   string
		header string
		want   int
	}{
		{"no token", http.MethodGet, "/me", "", http.StatusUnauthorized},
		{"garbage", http.MethodGet, "/me", "Bearer nope", http.StatusUnauthorized},
		{"wrong scheme", http.MethodGet, "/me", "Basic " + userTok, http.StatusUnauthorized},
		{"user ok", http.MethodGet, "/me", "Bearer " + userTok, http.StatusOK},
		{"user on oracle route", http.MethodPost, "/oracle", "Bearer " + userTok, http.StatusForbidden},
		{"oracle ok", http.MethodPost, "/oracle", "bearer " + oracleTok, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}
