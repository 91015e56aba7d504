package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/coop-member-import/internal/api/dto"
	"github.com/spec-kit/coop-member-import/internal/auth"
	"github.com/spec-kit/coop-member-import/internal/domain"
	"github.com/spec-kit/coop-member-import/internal/service"
	apperrors "github.com/spec-kit/coop-member-import/pkg/util/errorutil"
)

// MembersHandler exposes imported member views and invitation actions.
type MembersHandler struct {
	query  *service.QueryService
	resend *service.ResendService
	retry  *service.RetryService
}

// NewMembersHandler constructs handler.
func NewMembersHandler(query *service.QueryService, resend *service.ResendService, retry *service.RetryService) *MembersHandler {
	return &MembersHandler{query: query, resend: resend, retry: retry}
}

func parseChannel(raw string) (domain.Channel, error) {
	if raw == "" {
		return domain.ChannelSMS, nil
	}
	channel := domain.Channel(strings.ToLower(strings.TrimSpace(raw)))
	if !channel.Valid() {
		return "", apperrors.Format(apperrors.CodeInvalidChannel, raw)
	}
	return channel, nil
}

func parseStatuses(raw string) ([]domain.ActivationStatus, error) {
	if raw == "" {
		return nil, nil
	}
	var statuses []domain.ActivationStatus
	for _, part := range strings.Split(raw, ",") {
		status := domain.ActivationStatus(strings.TrimSpace(part))
		if !status.Valid() {
			return nil, apperrors.NewValidationError("unknown activation status", map[string]any{"status": part})
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func requireActor(c *fiber.Ctx) (domain.Actor, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return domain.Actor{}, apperrors.NewUnauthorized("authentication required")
	}
	return principal.Actor(), nil
}

// List handles GET /admin/members.
func (h *MembersHandler) List(c *fiber.Ctx) error {
	statuses, err := parseStatuses(c.Query("status"))
	if err != nil {
		return err
	}
	page, err := h.query.ListImportedMembers(c.UserContext(), service.MemberQuery{
		Statuses: statuses,
		Search:   c.Query("search"),
		ImportID: c.Query("import_id"),
		SortBy:   c.Query("sort_by"),
		SortDesc: strings.EqualFold(c.Query("order"), "desc"),
		Page:     c.QueryInt("page", 1),
		PageSize: c.QueryInt("page_size", 20),
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": page})
}

// Get handles GET /admin/members/:id.
func (h *MembersHandler) Get(c *fiber.Ctx) error {
	member, err := h.query.GetMemberDetail(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewMemberResponse(member)})
}

// Resend handles POST /admin/members/:id/resend.
func (h *MembersHandler) Resend(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dto.ChannelRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid payload")
		}
	}
	channel, err := parseChannel(req.Channel)
	if err != nil {
		return err
	}

	result, err := h.resend.Resend(c.UserContext(), c.Params("id"), actor, channel)
	if err != nil {
		return err
	}
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	return c.Status(status).JSON(fiber.Map{"data": result})
}

// BulkResend handles POST /admin/members/resend. Member ids are internal ids.
func (h *MembersHandler) BulkResend(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	req, channel, err := parseBulk(c)
	if err != nil {
		return err
	}
	summary, err := h.resend.BulkResend(c.UserContext(), req.MemberIDs, actor, channel)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": summary})
}

// RetrySMS handles POST /admin/members/:id/retry-sms.
func (h *MembersHandler) RetrySMS(c *fiber.Ctx) error {
	return h.retryOne(c, domain.ChannelSMS)
}

// RetryEmail handles POST /admin/members/:id/retry-email.
func (h *MembersHandler) RetryEmail(c *fiber.Ctx) error {
	return h.retryOne(c, domain.ChannelEmail)
}

func (h *MembersHandler) retryOne(c *fiber.Ctx, channel domain.Channel) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	result, err := h.retry.Retry(c.UserContext(), service.RetryRequest{
		Channel:  channel,
		MemberID: c.Params("id"),
		ActorID:  actor.ID,
		Manual:   true,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewRetryResponse(result)})
}

// BulkRetry handles POST /admin/members/retry. Member ids are the
// cooperative member ids from the CSV.
func (h *MembersHandler) BulkRetry(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	req, channel, err := parseBulk(c)
	if err != nil {
		return err
	}
	summary, err := h.retry.RetryFailedNotifications(c.UserContext(), req.MemberIDs, channel, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": summary})
}

func parseBulk(c *fiber.Ctx) (dto.BulkMemberRequest, domain.Channel, error) {
	var req dto.BulkMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return req, "", fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if len(req.MemberIDs) == 0 {
		return req, "", fiber.NewError(http.StatusBadRequest, "member_ids required")
	}
	channel, err := parseChannel(req.Channel)
	return req, channel, err
}
