package handlers

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"reminder-service/internal/middleware"
	"reminder-service/internal/models"
	"reminder-service/internal/service"

	"github.com/gofiber/fiber/v3"
)

type ReminderHandler struct {
	reminderService *service.ReminderService
}

func NewReminderHandler(reminderService *service.ReminderService) *ReminderHandler {
	return &ReminderHandler{
		reminderService: reminderService,
	}
}

func (h *ReminderHandler) RegisterRoutes(app *fiber.App) {
	// Health check - always public
	app.Get("/health", h.HealthCheck)

	// PROTECTED ROUTES - Authentication required
	protectedGroup := app.Group("/protected/reminders")

	protectedGroup.Post("/", h.CreateReminder, middleware.PermissionRequired(middleware.WriteReminderPermission))
	protectedGroup.Get("/", h.ListReminders, middleware.PermissionRequired(middleware.ReadReminderPermission))
	protectedGroup.Get("/active", h.ListActiveReminders, middleware.PermissionRequired(middleware.ReadReminderPermission))
	protectedGroup.Get("/:id", h.GetReminder, middleware.PermissionRequired(middleware.ReadReminderPermission))
	protectedGroup.Put("/:id", h.UpdateReminder, middleware.PermissionRequired(middleware.UpdateReminderPermission))
	protectedGroup.Delete("/:id", h.DeleteReminder, middleware.PermissionRequired(middleware.DeleteReminderPermission))

	// State transitions
	protectedGroup.Post("/:id/snooze", h.SnoozeReminder, middleware.PermissionRequired(middleware.UpdateReminderPermission))
	protectedGroup.Post("/:id/dismiss", h.DismissReminder, middleware.PermissionRequired(middleware.UpdateReminderPermission))
	protectedGroup.Post("/:id/complete", h.CompleteReminder, middleware.PermissionRequired(middleware.UpdateReminderPermission))
	protectedGroup.Post("/:id/trigger", h.TriggerReminder, middleware.PermissionRequired(middleware.TriggerReminderPermission))
	protectedGroup.Post("/:id/view", h.MarkViewed, middleware.PermissionRequired(middleware.ReadReminderPermission))

	// Interaction history
	protectedGroup.Get("/:id/interactions", h.GetInteractions, middleware.PermissionRequired(middleware.ReadReminderPermission))
}

func (h *ReminderHandler) CreateReminder(c fiber.Ctx) error {
	userID := c.Get("X-User-ID")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User authentication required",
		})
	}

	var req models.CreateReminderRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reminder, err := h.reminderService.CreateReminder(ctx, userID, &req)
	if err != nil {
		log.Printf("Failed to create reminder for user %s: %v", userID, err)
		return h.errorResponse(c, err, "Failed to create reminder")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Reminder created successfully",
		"data": fiber.Map{
			"reminder": reminder,
		},
	})
}

func (h *ReminderHandler) ListReminders(c fiber.Ctx) error {
	userID := c.Get("X-User-ID")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User authentication required",
		})
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := h.reminderService.ListReminders(ctx, userID, page, limit)
	if err != nil {
		log.Printf("Failed to list reminders for user %s: %v", userID, err)
		return h.errorResponse(c, err, "Failed to retrieve reminders")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"data": fiber.Map{
			"reminders":   result.Reminders,
			"totalCount":  result.TotalCount,
			"pageCount":   result.PageCount,
			"currentPage": result.CurrentPage,
		},
	})
}

func (h *ReminderHandler) ListActiveReminders(c fiber.Ctx) error {
	userID := c.Get("X-User-ID")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User authentication required",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reminders, err := h.reminderService.ListActive(ctx, userID)
	if err != nil {
		log.Printf("Failed to list active reminders for user %s: %v", userID, err)
		return h.errorResponse(c, err, "Failed to retrieve active reminders")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"data": fiber.Map{
			"reminders": reminders,
			"count":     len(reminders),
		},
	})
}

func (h *ReminderHandler) GetReminder(c fiber.Ctx) error {
	userID := c.Get("X-User-ID")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User authentication required",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reminder, err := h.reminderService.GetReminder(ctx, userID, c.Params("id"))
	if err != nil {
		log.Printf("Failed to get reminder %s for user %s: %v", c.Params("id"), userID, err)
		return h.errorResponse(c, err, "Failed to retrieve reminder")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"data": fiber.Map{
			"reminder": reminder,
		},
	})
}

func (h *ReminderHandler) UpdateReminder(c fiber.Ctx) error {
	userID := c.Get("X-User-ID")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User authentication required",
		})
	}

	var updateRequest models.UpdateReminderRequest
	if err := c.Bind().Body(&updateRequest); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reminder, err := h.reminderService.UpdateReminder(ctx, userID, c.Params("id"), &updateRequest.Reminder)
	if err != nil {
		log.Printf("Failed to update reminder %s for user %s: %v", c.Params("id"), userID, err)
		return h.errorResponse(c, err, "Failed to update reminder")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Reminder updated successfully",
		"data": fiber.Map{
			"reminder": reminder,
		},
	})
}

func (h *ReminderHandler) DeleteReminder(c fiber.Ctx) error {
	userID := c.Get("X-User-ID")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User authentication required",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.reminderService.DeleteReminder(ctx, userID, c.Params("id")); err != nil {
		log.Printf("Failed to delete reminder %s for user %s: %v", c.Params("id"), userID, err)
		return h.errorResponse(c, err, "Failed to delete reminder")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Reminder deleted successfully",
	})
}

func (h *ReminderHandler) SnoozeReminder(c fiber.Ctx) error {
	userID := c.Get("X-User-ID")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User authentication required",
		})
	}

	var req models.SnoozeRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reminder, err := h.reminderService.SnoozeReminder(ctx, userID, c.Params("id"), req.DurationMinutes, req.Reason)
	if err != nil {
		log.Printf("Failed to snooze reminder %s for user %s: %v", c.Params("id"), userID, err)
		return h.errorResponse(c, err, "Failed to snooze reminder")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Reminder snoozed successfully",
		"data": fiber.Map{
			"reminder": reminder,
		},
	})
}

func (h *ReminderHandler) DismissReminder(c fiber.Ctx) error {
	userID := c.Get("X-User-ID")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User authentication required",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reminder, err := h.reminderService.DismissReminder(ctx, userID, c.Params("id"))
	if err != nil {
		log.Printf("Failed to dismiss reminder %s for user %s: %v", c.Params("id"), userID, err)
		return h.errorResponse(c, err, "Failed to dismiss reminder")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Reminder dismissed successfully",
		"data": fiber.Map{
			"reminder": reminder,
		},
	})
}

func (h *ReminderHandler) CompleteReminder(c fiber.Ctx) error {
	userID := c.Get("X-User-ID")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User authentication required",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reminder, err := h.reminderService.CompleteReminder(ctx, userID, c.Params("id"))
	if err != nil {
		log.Printf("Failed to complete reminder %s for user %s: %v", c.Params("id"), userID, err)
		return h.errorResponse(c, err, "Failed to complete reminder")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Reminder completed successfully",
		"data": fiber.Map{
			"reminder": reminder,
		},
	})
}

func (h *ReminderHandler) TriggerReminder(c fiber.Ctx) error {
	userID := c.Get("X-User-ID")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User authentication required",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := h.reminderService.ManualTrigger(ctx, userID, c.Params("id")); err != nil {
		log.Printf("Failed to trigger reminder %s for user %s: %v", c.Params("id"), userID, err)
		return h.errorResponse(c, err, "Failed to trigger reminder")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Reminder triggered successfully",
	})
}

func (h *ReminderHandler) MarkViewed(c fiber.Ctx) error {
	userID := c.Get("X-User-ID")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User authentication required",
		})
	}

	// Body is optional; an empty view defaults to the in-app channel.
	var req models.ViewRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}
	if req.Channel == "" {
		req.Channel = models.ChannelInApp
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.reminderService.MarkViewed(ctx, userID, c.Params("id"), req.Channel); err != nil {
		log.Printf("Failed to mark reminder %s viewed for user %s: %v", c.Params("id"), userID, err)
		return h.errorResponse(c, err, "Failed to record view")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Reminder view recorded",
	})
}

func (h *ReminderHandler) GetInteractions(c fiber.Ctx) error {
	userID := c.Get("X-User-ID")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User authentication required",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	interactions, err := h.reminderService.GetInteractions(ctx, userID, c.Params("id"))
	if err != nil {
		log.Printf("Failed to get interactions for reminder %s: %v", c.Params("id"), err)
		return h.errorResponse(c, err, "Failed to retrieve interactions")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"data": fiber.Map{
			"interactions": interactions,
			"count":        len(interactions),
		},
	})
}

func (h *ReminderHandler) HealthCheck(c fiber.Ctx) error {
	return c.Status(fiber.StatusOK).SendString("Reminder Service is healthy")
}

// errorResponse maps service sentinel errors onto HTTP statuses.
func (h *ReminderHandler) errorResponse(c fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, service.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, service.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Reminder not found",
		})
	case errors.Is(err, service.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": fallback,
		})
	}
}
