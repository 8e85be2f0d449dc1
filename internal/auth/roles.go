package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/music-store/support-service/internal/domain"
	apperrors "github.com/music-store/support-service/pkg/util/errorutil"
)

// RequireCustomer ensures the caller is an authenticated customer.
func RequireCustomer() fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, ok := IdentityFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if identity.Role != domain.RoleCustomer {
			return apperrors.NewForbidden("customer role required")
		}
		return c.Next()
	}
}

// RequireStaff ensures the caller holds a staff or admin role.
func RequireStaff() fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, ok := IdentityFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !identity.Role.IsStaff() {
			return apperrors.NewForbidden("staff role required")
		}
		return c.Next()
	}
}

// RequireAdmin ensures the caller is an administrator.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, ok := IdentityFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if identity.Role != domain.RoleAdmin {
			return apperrors.NewForbidden("admin role required")
		}
		return c.Next()
	}
}
