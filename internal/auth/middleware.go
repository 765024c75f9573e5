package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/outlet-feedback/internal/domain"
	apperrors "github.com/spec-kit/outlet-feedback/pkg/util"
)

const actorKey = "auth_actor"

// AuthMiddleware validates bearer tokens and stores the actor on the context.
type AuthMiddleware struct {
	tokens *TokenManager
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(strings.TrimSpace(parts[1]))
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	c.Locals(actorKey, claims.Actor())
	return c.Next()
}

// ActorFromContext retrieves the authenticated actor.
func ActorFromContext(c *fiber.Ctx) (domain.Actor, bool) {
	actor, ok := c.Locals(actorKey).(domain.Actor)
	return actor, ok
}
