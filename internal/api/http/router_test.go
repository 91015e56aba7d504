package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/coop-member-import/internal/api/http/handlers"
	"github.com/spec-kit/coop-member-import/internal/auth"
	"github.com/spec-kit/coop-member-import/internal/domain"
	"github.com/spec-kit/coop-member-import/internal/observability"
)

type adminLookup map[string]*domain.Admin

func (l adminLookup) GetByID(_ context.Context, id string) (*domain.Admin, error) {
	if a, ok := l[id]; ok {
		return a, nil
	}
	return nil, pgx.ErrNoRows
}

type activityLog struct{}

func (activityLog) ListByAction(_ context.Context, action domain.ActivityAction, _ int) ([]domain.Activity, error) {
	return []domain.Activity{{ID: "1", ActorID: "active", Action: action}}, nil
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newTestApp(t *testing.T) (*fiber.App, *auth.TokenManager) {
	t.Helper()
	tokens := auth.NewTokenManager("router-secret", 60)
	admins := adminLookup{
		"active":   {ID: "active", Name: "Ada", Active: true},
		"inactive": {ID: "inactive", Name: "Old", Active: false},
	}

	app := fiber.New()
	metrics := observability.NewMetrics()
	RegisterMiddlewares(app, zap.NewNop(), metrics, 0)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("coop-member-import", "test"),
		Auth:           handlers.NewAuthHandler(nil, nil),
		Imports:        handlers.NewImportsHandler(nil, nil, nil),
		Members:        handlers.NewMembersHandler(nil, nil, nil),
		Activity:       handlers.NewActivityHandler(activityLog{}),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, admins),
	})
	return app, tokens
}

func bearer(t *testing.T, tokens *auth.TokenManager, adminID string) string {
	t.Helper()
	token, _, err := tokens.GenerateToken(adminID, domain.SubjectTypeAdmin)
	require.NoError(t, err)
	return "Bearer " + token
}

func doRequest(t *testing.T, app *fiber.App, method, path, authHeader, body string) (int, errorBody) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if authHeader != "" {
		req.Header.Set(fiber.HeaderAuthorization, authHeader)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out errorBody
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out
}

func TestHealthLive(t *testing.T) {
	app, _ := newTestApp(t)
	status, _ := doRequest(t, app, fiber.MethodGet, "/health/live", "", "")
	assert.Equal(t, fiber.StatusOK, status)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	app, tokens := newTestApp(t)

	status, body := doRequest(t, app, fiber.MethodGet, "/admin/members", "", "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", body.Error.Code)

	status, _ = doRequest(t, app, fiber.MethodGet, "/admin/imports", "Bearer garbage", "")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, body = doRequest(t, app, fiber.MethodGet, "/admin/imports", bearer(t, tokens, "inactive"), "")
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", body.Error.Code)
}

func TestResendRejectsUnknownChannel(t *testing.T) {
	app, tokens := newTestApp(t)

	status, body := doRequest(t, app, fiber.MethodPost, "/admin/members/abc/resend",
		bearer(t, tokens, "active"), `{"channel":"fax"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "INVALID_CHANNEL", body.Error.Code)
}

func TestPreviewRequiresFile(t *testing.T) {
	app, tokens := newTestApp(t)

	status, body := doRequest(t, app, fiber.MethodPost, "/admin/imports/preview", bearer(t, tokens, "active"), "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", body.Error.Code)
}

func TestBulkRetryRequiresMemberIDs(t *testing.T) {
	app, tokens := newTestApp(t)

	status, body := doRequest(t, app, fiber.MethodPost, "/admin/members/retry", bearer(t, tokens, "active"), `{"member_ids":[]}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "BAD_REQUEST", body.Error.Code)
}

func TestAdminLoginValidatesPayload(t *testing.T) {
	app, _ := newTestApp(t)

	status, body := doRequest(t, app, fiber.MethodPost, "/auth/admin/login", "", `{"email":""}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "email and password required", body.Error.Message)
}

func TestActivityListValidatesAction(t *testing.T) {
	app, tokens := newTestApp(t)
	token := bearer(t, tokens, "active")

	status, body := doRequest(t, app, fiber.MethodGet, "/admin/activity?action=bogus", token, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", body.Error.Code)

	status, _ = doRequest(t, app, fiber.MethodGet, "/admin/activity?action=sms_failed", token, "")
	assert.Equal(t, fiber.StatusOK, status)
}
