package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/bankline/complaints/internal/models"
)

const principalKey = "principal"

const (
	PrincipalIDHeader   = "X-Principal-Id"
	PrincipalTypeHeader = "X-Principal-Type"
	PrincipalRoleHeader = "X-Principal-Role"
)

// Claims is the session token issued by the identity provider.
type Claims struct {
	Type string `json:"typ"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticate resolves the caller. With a secret it verifies an HS256
// bearer token; without one it trusts the X-Principal-* headers set by a
// fronting gateway. Requests without credentials pass through anonymous.
func Authenticate(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			p   models.Principal
			ok  bool
			err error
		)
		if secret != "" {
			p, ok, err = fromBearer(c.GetHeader("Authorization"), secret)
		} else {
			p, ok, err = fromHeaders(c)
		}
		if err != nil {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
			return
		}
		if ok {
			c.Set(principalKey, p)
		}
		c.Next()
	}
}

func fromBearer(header, secret string) (models.Principal, bool, error) {
	raw, found := strings.CutPrefix(strings.TrimSpace(header), "Bearer ")
	if !found || strings.TrimSpace(raw) == "" {
		return models.Principal{}, false, nil
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return models.Principal{}, false, errors.New("invalid session token")
	}
	return buildPrincipal(claims.Subject, claims.Type, claims.Role)
}

func fromHeaders(c *gin.Context) (models.Principal, bool, error) {
	id := c.GetHeader(PrincipalIDHeader)
	if id == "" {
		return models.Principal{}, false, nil
	}
	return buildPrincipal(id, c.GetHeader(PrincipalTypeHeader), c.GetHeader(PrincipalRoleHeader))
}

func buildPrincipal(id, typ, role string) (models.Principal, bool, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil || n <= 0 {
		return models.Principal{}, false, errors.New("principal id must be a positive integer")
	}
	t := models.PrincipalType(strings.ToLower(strings.TrimSpace(typ)))
	if t != models.PrincipalCustomer && t != models.PrincipalEmployee {
		return models.Principal{}, false, errors.New("principal type must be customer or employee")
	}
	return models.Principal{ID: n, Type: t, Role: strings.TrimSpace(role)}, true, nil
}

// RequirePrincipal rejects anonymous callers and, when types are given,
// callers of any other type.
func RequirePrincipal(types ...models.PrincipalType) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "Sign in required")
			return
		}
		if len(types) == 0 {
			c.Next()
			return
		}
		for _, t := range types {
			if p.Type == t {
				c.Next()
				return
			}
		}
		abort(c, http.StatusForbidden, "FORBIDDEN", "Not allowed for "+string(p.Type)+" accounts")
	}
}

func PrincipalFrom(c *gin.Context) (models.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return models.Principal{}, false
	}
	p, ok := v.(models.Principal)
	return p, ok
}
