package auth

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type Claims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

type JWTConfig struct {
	Issuer     string
	SigningKey []byte
	// Skipper bypasses authentication for public routes. Nil means AuthSkipper.
	Skipper func(c echo.Context) bool
}

func (cfg JWTConfig) skip(c echo.Context) bool {
	if cfg.Skipper != nil {
		return cfg.Skipper(c)
	}
	return AuthSkipper(c)
}

// ParseToken verifies an HS256 token and returns the principal it names.
func ParseToken(tokenStr string, cfg JWTConfig) (Principal, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return cfg.SigningKey, nil
	}, opts...)
	if err != nil || !token.Valid {
		return Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}

	uid, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || uid <= 0 || !claims.Role.Valid() {
		return Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "invalid token claims")
	}
	return Principal{UserID: uid, Role: claims.Role}, nil
}

func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}
	return strings.TrimSpace(parts[1]), nil
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.skip(c) {
				return next(c)
			}
			tokenStr, err := bearerToken(c)
			if err != nil {
				return err
			}
			p, err := ParseToken(tokenStr, cfg)
			if err != nil {
				return err
			}
			setPrincipal(c, p)
			return next(c)
		}
	}
}

// DevUserID is the principal assumed by DevAuthMiddleware for requests
// without credentials: the first admin created by `user create-admin`.
const DevUserID int64 = 1

// DevAuthMiddleware accepts unauthenticated requests as the development
// admin. Requests that do carry a token are still verified.
func DevAuthMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	strict := JWTMiddleware(cfg)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		verified := strict(next)
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") != "" {
				return verified(c)
			}
			setPrincipal(c, Principal{UserID: DevUserID, Role: RoleAdmin})
			return next(c)
		}
	}
}

// CurrentPrincipal returns the caller or a 401 when the route was reached
// without authentication.
func CurrentPrincipal(c echo.Context) (Principal, error) {
	p, ok := PrincipalFromContext(c.Request().Context())
	if !ok {
		return Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return p, nil
}
