package dto

import (
	"time"

	"github.com/spec-kit/coop-member-import/internal/domain"
)

// AdminLoginRequest payload for administrator login.
type AdminLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AdminResponse is the public view of an administrator.
type AdminResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ActivateRequest payload for SMS activation with a temporary password.
type ActivateRequest struct {
	MemberID          string `json:"member_id"`
	TemporaryPassword string `json:"temporary_password"`
	NewPassword       string `json:"new_password"`
}

// EmailActivateRequest payload for activation from an email link.
type EmailActivateRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// NewAdminResponse maps an admin to its response.
func NewAdminResponse(a *domain.Admin) AdminResponse {
	return AdminResponse{ID: a.ID, Name: a.Name, Email: a.Email}
}
