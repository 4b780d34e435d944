package middleware

import (
	"errors"
	"net/http"
	"strings"

	"eterna-home/internal/model"
	"eterna-home/internal/usercache"
	"eterna-home/pkg/jwtutil"
	"eterna-home/pkg/logger"
	"eterna-home/prometheus"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Context keys set by the auth middleware
const (
	ContextKeyUser     = "user"
	ContextKeyClaims   = "claims"
	ContextKeyTenantID = "tenant_id"
)

// credentialError is the one message every authentication failure maps to.
// Bad signature, expiry, malformed payload and unknown subject are not
// distinguishable from the response.
const credentialError = "could not validate credentials"

// resolve reports failures through these sentinels; the middleware that
// called it owns the HTTP response.
var (
	errUnauthenticated = errors.New("unauthenticated")
	errIdentityLookup  = errors.New("identity lookup failed")
)

// Auth resolves bearer tokens to users. Identity lookups go through the
// read-through user cache; the cache is best-effort and never fails a
// request on its own.
type Auth struct {
	jwt   *jwtutil.JWTUtil
	users *usercache.Store
}

// NewAuth creates the auth middleware
func NewAuth(jwt *jwtutil.JWTUtil, users *usercache.Store) *Auth {
	return &Auth{jwt: jwt, users: users}
}

// Required rejects requests without a valid bearer token resolving to an
// active user. On success the user, claims and tenant ID are stored in
// the echo context and the request-scoped logger is enriched.
func (a *Auth) Required(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		log := logger.FromEcho(c)

		tokenString, ok := bearerToken(c)
		if !ok {
			log.Warn("Missing or malformed Authorization header")
			prometheus.RecordAuthError("missing_token")
			return unauthenticated(c)
		}

		user, claims, err := a.resolve(c, tokenString)
		if err != nil {
			return respondResolveError(c, err)
		}

		if !user.IsActive {
			log.Warn("Disabled account presented a valid token", zap.String("email", user.Email))
			prometheus.RecordAuthError("account_disabled")
			return c.JSON(http.StatusForbidden, echo.Map{"error": "account disabled"})
		}

		storeIdentity(c, user, claims)
		return next(c)
	}
}

// Optional resolves identity when a token is supplied and passes through
// anonymously when it is not. A token that is supplied but invalid is
// still rejected.
func (a *Auth) Optional(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if c.Request().Header.Get("Authorization") == "" {
			return next(c)
		}

		tokenString, ok := bearerToken(c)
		if !ok {
			prometheus.RecordAuthError("invalid_auth_format")
			return unauthenticated(c)
		}

		user, claims, err := a.resolve(c, tokenString)
		if err != nil {
			return respondResolveError(c, err)
		}
		if !user.IsActive {
			prometheus.RecordAuthError("account_disabled")
			return c.JSON(http.StatusForbidden, echo.Map{"error": "account disabled"})
		}

		storeIdentity(c, user, claims)
		return next(c)
	}
}

// resolve validates the token and looks up the subject. Token failures
// and unknown subjects both come back as errUnauthenticated so the
// caller's response cannot distinguish them; resolve never writes the
// response itself.
func (a *Auth) resolve(c echo.Context, tokenString string) (*model.User, *jwtutil.UserClaims, error) {
	log := logger.FromEcho(c)

	claims, err := a.jwt.ValidateToken(tokenString)
	if err != nil {
		log.Warn("Invalid or expired token", zap.Error(err))
		prometheus.RecordAuthError("invalid_token")
		return nil, nil, errUnauthenticated
	}

	user, err := a.users.ByEmail(c.Request().Context(), claims.Subject)
	if err != nil {
		if usercache.IsNotFound(err) {
			log.Warn("Token subject does not resolve to a user", zap.String("subject", claims.Subject))
			prometheus.RecordAuthError("user_not_found")
			return nil, nil, errUnauthenticated
		}
		log.Error("User lookup failed", zap.Error(err))
		prometheus.RecordAuthError("store_error")
		return nil, nil, errIdentityLookup
	}

	return user, claims, nil
}

func respondResolveError(c echo.Context, err error) error {
	if errors.Is(err, errIdentityLookup) {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return unauthenticated(c)
}

// storeIdentity records the resolved identity in the echo context and
// threads an enriched logger through the request context for downstream
// components (authorizer audit logging in particular).
func storeIdentity(c echo.Context, user *model.User, claims *jwtutil.UserClaims) {
	c.Set(ContextKeyUser, user)
	c.Set(ContextKeyClaims, claims)

	fields := []zap.Field{zap.String("email", user.Email)}
	if user.TenantID != nil {
		c.Set(ContextKeyTenantID, *user.TenantID)
		fields = append(fields, zap.String("tenant_id", user.TenantID.String()))
	}

	ctxLogger := logger.FromEcho(c).With(fields...)
	c.Set("logger", ctxLogger)
	c.SetRequest(c.Request().WithContext(
		logger.WithContext(c.Request().Context(), ctxLogger)))
}

func bearerToken(c echo.Context) (string, bool) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func unauthenticated(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": credentialError})
}

// CurrentUser returns the authenticated user, or nil when the route ran
// without authentication.
func CurrentUser(c echo.Context) *model.User {
	user, _ := c.Get(ContextKeyUser).(*model.User)
	return user
}

// CurrentTenant returns the caller's active tenant ID
func CurrentTenant(c echo.Context) (uuid.UUID, bool) {
	id, ok := c.Get(ContextKeyTenantID).(uuid.UUID)
	return id, ok
}

// RequireTenant rejects authenticated users that carry no tenant ID.
// Reaching a tenant-scoped route without one is a data integrity problem
// on the user record, reported as a 400.
func RequireTenant(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, ok := CurrentTenant(c); !ok {
			logger.FromEcho(c).Warn("Authenticated user has no tenant on a tenant-scoped route")
			prometheus.RecordAuthError("tenant_missing")
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "user has no associated tenant"})
		}
		return next(c)
	}
}
