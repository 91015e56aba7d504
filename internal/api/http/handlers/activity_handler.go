package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/coop-member-import/internal/domain"
	apperrors "github.com/spec-kit/coop-member-import/pkg/util/errorutil"
)

// ActivityLister reads audit entries.
type ActivityLister interface {
	ListByAction(ctx context.Context, action domain.ActivityAction, limit int) ([]domain.Activity, error)
}

// ActivityHandler exposes the audit log.
type ActivityHandler struct {
	activities ActivityLister
}

// NewActivityHandler constructs handler.
func NewActivityHandler(activities ActivityLister) *ActivityHandler {
	return &ActivityHandler{activities: activities}
}

// List handles GET /admin/activity?action=...&limit=...
func (h *ActivityHandler) List(c *fiber.Ctx) error {
	action := domain.ActivityAction(c.Query("action"))
	if !action.Known() {
		return apperrors.NewValidationError("unknown or missing action", map[string]any{"action": string(action)})
	}
	limit := c.QueryInt("limit", 50)
	if limit > 500 {
		limit = 500
	}
	items, err := h.activities.ListByAction(c.UserContext(), action, limit)
	if err != nil {
		return apperrors.Format(apperrors.CodeDatabaseError, "list activity").WithCause(err)
	}
	if items == nil {
		items = []domain.Activity{}
	}
	return c.JSON(fiber.Map{"data": items})
}
