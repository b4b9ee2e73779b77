package auth

import (
	"errors"
	"strings"

	"github.com/cristianortiz/artAuction/internal/shared/logger"
	userdomain "github.com/cristianortiz/artAuction/internal/user/domain"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

const (
	AccessTokenCookie = "access_token"
	localUser         = "auth.user"
)

// TokenValidator is satisfied by *TokenService
type TokenValidator interface {
	ValidateToken(token string) (uuid.UUID, error)
}

// BearerToken looks for the access token in the cookie, the Authorization header and,
// for browser websocket clients that cannot set headers, the token query parameter
func BearerToken(c *fiber.Ctx) string {
	if token := c.Cookies(AccessTokenCookie); token != "" {
		return token
	}
	if h := c.Get(fiber.HeaderAuthorization); len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return c.Query("token")
}

// RequireUser rejects the request with 401 unless it carries a valid token of an existing user
func RequireUser(tokens TokenValidator, users userdomain.Repository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := BearerToken(c)
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing access token")
		}
		userID, err := tokens.ValidateToken(token)
		if err != nil {
			log.Debug("Rejected access token", zap.String("path", c.Path()), zap.Error(err))
			return fiber.NewError(fiber.StatusUnauthorized, "invalid access token")
		}
		user, err := users.FindByID(c.UserContext(), userID)
		if err != nil {
			if errors.Is(err, userdomain.ErrUserNotFound) {
				return fiber.NewError(fiber.StatusUnauthorized, "unknown user")
			}
			log.Error("User lookup failed", zap.String("userID", userID.String()), zap.Error(err))
			return fiber.ErrInternalServerError
		}
		c.Locals(localUser, user)
		return c.Next()
	}
}

// CurrentUser returns the user stored by RequireUser, nil outside of it
func CurrentUser(c *fiber.Ctx) *userdomain.User {
	user, _ := c.Locals(localUser).(*userdomain.User)
	return user
}
