// internal/web/auth.go
package web

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/owl29bd/cctv-automation-backend/internal/config"
	"github.com/owl29bd/cctv-automation-backend/internal/database"
	"github.com/owl29bd/cctv-automation-backend/internal/errdefs"
	"github.com/owl29bd/cctv-automation-backend/internal/maintenance"
)

const callerKey = "caller"

var (
	adminRoles    = []database.Role{database.RoleAdministrator, database.RoleAdmin}
	providerRoles = []database.Role{database.RoleServiceProvider, database.RoleAdministrator, database.RoleAdmin}
)

// Claims carried by access tokens.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens.
type Authenticator struct {
	secret []byte
	issuer string
}

func NewAuthenticator(cfg config.AuthConfig) *Authenticator {
	return &Authenticator{secret: []byte(cfg.JWTSecret), issuer: cfg.Issuer}
}

// Parse validates a raw token and returns the caller it names.
func (a *Authenticator) Parse(tokenString string) (maintenance.Caller, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return maintenance.Caller{}, errdefs.Unauthenticated("token expired")
		}
		return maintenance.Caller{}, errdefs.Unauthenticated("invalid token")
	}

	if claims.Subject == "" {
		return maintenance.Caller{}, errdefs.Unauthenticated("token has no subject")
	}
	role := database.Role(claims.Role)
	if !role.Valid() {
		return maintenance.Caller{}, errdefs.Unauthenticated("token has unknown role %q", claims.Role)
	}
	return maintenance.Caller{ID: claims.Subject, Role: role}, nil
}

// Sign mints a token for a user. Used by the CLI and tests.
func (a *Authenticator) Sign(claims Claims) (string, error) {
	if claims.Issuer == "" {
		claims.Issuer = a.issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			respondError(c, errdefs.Unauthenticated("missing Authorization header"))
			c.Abort()
			return
		}
		if !strings.HasPrefix(header, "Bearer ") {
			respondError(c, errdefs.Unauthenticated("invalid Authorization header format"))
			c.Abort()
			return
		}

		caller, err := a.Parse(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			respondError(c, err)
			c.Abort()
			return
		}

		c.Set(callerKey, caller)
		c.Next()
	}
}

// requireRoles rejects callers whose role is not listed.
func requireRoles(roles ...database.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := callerFrom(c)
		for _, role := range roles {
			if caller.Role == role {
				c.Next()
				return
			}
		}
		respondError(c, errdefs.Unauthorized("role %q may not perform this action", caller.Role))
		c.Abort()
	}
}

func callerFrom(c *gin.Context) maintenance.Caller {
	if v, ok := c.Get(callerKey); ok {
		if caller, ok := v.(maintenance.Caller); ok {
			return caller
		}
	}
	return maintenance.Caller{}
}
