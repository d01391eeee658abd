package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/pkg/util"
)

// RequireHandler ensures an active handler is authenticated.
func RequireHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFromContext(c); !ok {
			return util.NewUnauthorized("handler authentication required")
		}
		return c.Next()
	}
}

// RequireElevated ensures the caller holds the elevated tier.
func RequireElevated() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return util.NewUnauthorized("handler authentication required")
		}
		if principal.Tier != domain.HandlerTierElevated {
			return util.NewForbidden("elevated tier required")
		}
		return c.Next()
	}
}
