package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/coop-member-import/internal/api/dto"
	"github.com/spec-kit/coop-member-import/internal/auth"
	"github.com/spec-kit/coop-member-import/internal/service"
	apperrors "github.com/spec-kit/coop-member-import/pkg/util/errorutil"
)

// ImportsHandler exposes CSV upload, confirmation and import history.
type ImportsHandler struct {
	imports  *service.ImportService
	query    *service.QueryService
	recovery *service.RecoveryService
}

// NewImportsHandler constructs handler.
func NewImportsHandler(imports *service.ImportService, query *service.QueryService, recovery *service.RecoveryService) *ImportsHandler {
	return &ImportsHandler{imports: imports, query: query, recovery: recovery}
}

// Preview handles POST /admin/imports/preview.
func (h *ImportsHandler) Preview(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return apperrors.NewValidationError("multipart field \"file\" is required", nil)
	}
	file, err := fh.Open()
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	defer file.Close()

	result, err := h.imports.Preview(c.UserContext(), fh.Filename, fh.Size, file, principal.Actor())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

// Confirm handles POST /admin/imports/confirm.
func (h *ImportsHandler) Confirm(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.ConfirmImportRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.PreviewToken == "" {
		return fiber.NewError(http.StatusBadRequest, "preview_token required")
	}

	result, err := h.imports.Confirm(c.UserContext(), req.PreviewToken, principal.Actor())
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": result})
}

// List handles GET /admin/imports.
func (h *ImportsHandler) List(c *fiber.Ctx) error {
	page, err := h.query.ListImports(c.UserContext(), c.QueryInt("page", 1), c.QueryInt("page_size", 20))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": page})
}

// Get handles GET /admin/imports/:id.
func (h *ImportsHandler) Get(c *fiber.Ctx) error {
	op, err := h.query.GetImport(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": op})
}

// Recovery handles GET /admin/imports/:id/recovery.
func (h *ImportsHandler) Recovery(c *fiber.Ctx) error {
	id := c.Params("id")
	summary, err := h.recovery.GetPartialImportRecovery(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"summary": summary,
		"check":   h.recovery.ValidateRecoveryPossible(c.UserContext(), id),
	}})
}

// Retry handles POST /admin/imports/:id/retry.
func (h *ImportsHandler) Retry(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	result, err := h.recovery.RetryFailedImport(c.UserContext(), c.Params("id"), principal.Actor())
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": result})
}
