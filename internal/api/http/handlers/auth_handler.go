package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/coop-member-import/internal/api/dto"
	"github.com/spec-kit/coop-member-import/internal/service"
)

// AuthHandler exposes admin login and member activation.
type AuthHandler struct {
	authService       *service.AuthService
	activationService *service.ActivationService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService, activationService *service.ActivationService) *AuthHandler {
	return &AuthHandler{authService: authService, activationService: activationService}
}

// AdminLogin handles POST /auth/admin/login.
func (h *AuthHandler) AdminLogin(c *fiber.Ctx) error {
	var req dto.AdminLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Email == "" || req.Password == "" {
		return fiber.NewError(http.StatusBadRequest, "email and password required")
	}

	admin, token, exp, err := h.authService.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"admin": dto.NewAdminResponse(admin),
			"auth":  dto.AuthResponse{Token: token, ExpiresAt: exp},
		},
	})
}

// Activate handles POST /auth/members/activate.
func (h *AuthHandler) Activate(c *fiber.Ctx) error {
	var req dto.ActivateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.MemberID == "" || req.TemporaryPassword == "" || req.NewPassword == "" {
		return fiber.NewError(http.StatusBadRequest, "member_id, temporary_password and new_password required")
	}

	member, err := h.activationService.ActivateWithTemporaryPassword(c.UserContext(), req.MemberID, req.TemporaryPassword, req.NewPassword)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewMemberResponse(member)})
}

// ActivateEmail handles POST /auth/members/activate/email.
func (h *AuthHandler) ActivateEmail(c *fiber.Ctx) error {
	var req dto.EmailActivateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Token == "" || req.NewPassword == "" {
		return fiber.NewError(http.StatusBadRequest, "token and new_password required")
	}

	member, err := h.activationService.ActivateWithEmailToken(c.UserContext(), req.Token, req.NewPassword)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewMemberResponse(member)})
}
