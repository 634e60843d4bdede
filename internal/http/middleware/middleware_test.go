package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/bankline/complaints/internal/models"
)

func principalEngine(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Authenticate(secret))
	r.GET("/whoami", RequirePrincipal(models.PrincipalEmployee), func(c *gin.Context) {
		p, _ := PrincipalFrom(c)
		c.JSON(http.StatusOK, p)
	})
	return r
}

func TestAuthenticateHeaders(t *testing.T) {
	r := principalEngine("")
	cases := []struct {
		id, typ string
		want    int
	}{
		{"", "", http.StatusUnauthorized},
		{"7", "employee", http.StatusOK},
		{"7", "customer", http.StatusForbidden},
		{"x", "employee", http.StatusUnauthorized},
		{"7", "robot", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		if tc.id != "" {
			req.Header.Set(PrincipalIDHeader, tc.id)
			req.Header.Set(PrincipalTypeHeader, tc.typ)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("id=%q type=%q: expected %d, got %d", tc.id, tc.typ, tc.want, w.Code)
		}
		if w.Header().Get(RequestIDHeader) == "" {
			t.Fatalf("missing request id header")
		}
	}
}

func TestAuthenticateBearer(t *testing.T) {
	secret := "test-secret"
	r := principalEngine(secret)
	sign := func(key string, claims Claims) string {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return tok
	}
	valid := Claims{Type: "employee", Role: "csr", RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "12",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	cases := []struct {
		token string
		want  int
	}{
		{sign(secret, valid), http.StatusOK},
		{sign("other", valid), http.StatusUnauthorized},
		{sign(secret, expired), http.StatusUnauthorized},
	}
	for i, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer "+tc.token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("case %d: expected %d, got %d", i, tc.want, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(PrincipalIDHeader, "12")
	req.Header.Set(PrincipalTypeHeader, "employee")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("headers must be ignored when a secret is set, got %d", w.Code)
	}
}

func TestAdminKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin", AdminKey("k"), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	req.Header.Set("X-Admin-Key", "k")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
}

func TestTimeoutSetsDeadline(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Timeout(time.Second))
	r.GET("/", func(c *gin.Context) {
		if _, ok := c.Request.Context().Deadline(); !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusOK)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected deadline on request context")
	}
}
