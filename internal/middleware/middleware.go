package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v3"
)

const (
	// Reminder permissions
	ReadReminderPermission    = "read:reminder"
	ReadAllReminderPermission = "read:reminder:all"
	WriteReminderPermission   = "write:reminder"
	UpdateReminderPermission  = "update:reminder"
	DeleteReminderPermission  = "delete:reminder"
	TriggerReminderPermission = "trigger:reminder"

	// Admin permissions (for backward compatibility)
	AdminPermission   = "admin"
	ManagerPermission = "manager"
)

// PermissionRequired checks the permission list the gateway forwards in
// X-User-Permissions. Admin and manager grants pass everything.
func PermissionRequired(permission string) fiber.Handler {
	return func(c fiber.Ctx) error {
		userPermissions := c.Get("X-User-Permissions")

		if strings.Contains(userPermissions, AdminPermission) ||
			strings.Contains(userPermissions, ManagerPermission) ||
			strings.Contains(userPermissions, permission) {
			return c.Next()
		}

		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Insufficient permissions",
		})
	}
}
