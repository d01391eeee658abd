package auth

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
	"github.com/spec-kit/helpdesk-engine/pkg/util"
)

// stubDirectory serves handler lookups from a map.
type stubDirectory struct {
	handlers map[string]*domain.Handler
}

var _ repository.HandlerDirectory = (*stubDirectory)(nil)

func (s *stubDirectory) GetByID(_ context.Context, id string) (*domain.Handler, error) {
	handler, ok := s.handlers[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *handler
	return &cp, nil
}

func (s *stubDirectory) ListActiveByUnit(context.Context, string) ([]domain.Handler, error) {
	return nil, nil
}

func (s *stubDirectory) ListActiveElevated(context.Context) ([]domain.Handler, error) {
	return nil, nil
}

// newGuardedApp mounts the middleware chain under an error handler that
// maps domain errors the way the server does.
func newGuardedApp(m *AuthMiddleware) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := util.ToDomainError(err)
			return c.Status(de.HTTPStatus).JSON(fiber.Map{"code": de.Code})
		},
	})
	app.Get("/protected", m.Handle, RequireHandler(), func(c *fiber.Ctx) error {
		principal, _ := PrincipalFromContext(c)
		return c.JSON(fiber.Map{"handler_id": principal.Handler.ID})
	})
	app.Post("/elevated", m.Handle, RequireElevated(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func newAuthFixture(handlers ...domain.Handler) (*AuthMiddleware, *TokenManager, *stubDirectory) {
	directory := &stubDirectory{handlers: make(map[string]*domain.Handler)}
	for i := range handlers {
		h := handlers[i]
		directory.handlers[h.ID] = &h
	}
	tokens := NewTokenManager("test-secret", 1)
	return NewAuthMiddleware(tokens, directory), tokens, directory
}

func activeHandler(id string, tier domain.HandlerTier) domain.Handler {
	return domain.Handler{
		ID:     id,
		Name:   "Handler " + id,
		Email:  id + "@example.test",
		Units:  []string{"support"},
		Tier:   tier,
		Active: true,
	}
}

func TestHandleRejectsMissingHeader(t *testing.T) {
	m, _, _ := newAuthFixture()
	app := newGuardedApp(m)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/protected", nil))
	if err != nil {
		t.Fatalf("Test() = %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusUnauthorized)
	}
}

func TestHandleRejectsMalformedHeader(t *testing.T) {
	m, _, _ := newAuthFixture()
	app := newGuardedApp(m)

	for _, header := range []string{"Bearer", "Basic abc", "garbage"} {
		req := httptest.NewRequest(fiber.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", header)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("Test() = %v", err)
		}
		if resp.StatusCode != fiber.StatusUnauthorized {
			t.Fatalf("header %q: status = %d, want %d", header, resp.StatusCode, fiber.StatusUnauthorized)
		}
	}
}

func TestHandleRejectsUnknownHandler(t *testing.T) {
	m, tokens, _ := newAuthFixture()
	app := newGuardedApp(m)

	token, _, err := tokens.GenerateToken("h-ghost", domain.HandlerTierOrdinary)
	if err != nil {
		t.Fatalf("GenerateToken() = %v", err)
	}
	req := httptest.NewRequest(fiber.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Test() = %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusUnauthorized)
	}
}

func TestHandleRejectsDeactivatedHandler(t *testing.T) {
	handler := activeHandler("h-1", domain.HandlerTierOrdinary)
	handler.Active = false
	m, tokens, _ := newAuthFixture(handler)
	app := newGuardedApp(m)

	token, _, err := tokens.GenerateToken("h-1", domain.HandlerTierOrdinary)
	if err != nil {
		t.Fatalf("GenerateToken() = %v", err)
	}
	req := httptest.NewRequest(fiber.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Test() = %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusUnauthorized)
	}
}

func TestHandleLoadsPrincipal(t *testing.T) {
	m, tokens, _ := newAuthFixture(activeHandler("h-1", domain.HandlerTierOrdinary))
	app := newGuardedApp(m)

	token, _, err := tokens.GenerateToken("h-1", domain.HandlerTierOrdinary)
	if err != nil {
		t.Fatalf("GenerateToken() = %v", err)
	}
	req := httptest.NewRequest(fiber.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Test() = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "h-1") {
		t.Fatalf("body = %s, want handler id h-1", body)
	}
}

// The directory record decides the tier at request time: a token minted
// before a promotion still opens elevated routes, and one minted before
// a demotion no longer does.
func TestElevatedTierComesFromDirectory(t *testing.T) {
	m, tokens, directory := newAuthFixture(activeHandler("h-1", domain.HandlerTierElevated))
	app := newGuardedApp(m)

	token, _, err := tokens.GenerateToken("h-1", domain.HandlerTierOrdinary)
	if err != nil {
		t.Fatalf("GenerateToken() = %v", err)
	}
	req := httptest.NewRequest(fiber.MethodPost, "/elevated", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Test() = %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusNoContent)
	}

	directory.handlers["h-1"].Tier = domain.HandlerTierOrdinary
	req = httptest.NewRequest(fiber.MethodPost, "/elevated", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("Test() = %v", err)
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("status after demotion = %d, want %d", resp.StatusCode, fiber.StatusForbidden)
	}
}

func TestRequireOpsKey(t *testing.T) {
	hash, err := HashOpsKey("swordfish", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashOpsKey() = %v", err)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := util.ToDomainError(err)
			return c.Status(de.HTTPStatus).JSON(fiber.Map{"code": de.Code})
		},
	})
	app.Post("/ingest", RequireOpsKey(hash), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusAccepted)
	})
	app.Post("/unconfigured", RequireOpsKey(""), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusAccepted)
	})

	cases := []struct {
		name   string
		path   string
		key    string
		status int
	}{
		{"valid key", "/ingest", "swordfish", fiber.StatusAccepted},
		{"wrong key", "/ingest", "marlin", fiber.StatusUnauthorized},
		{"missing key", "/ingest", "", fiber.StatusUnauthorized},
		{"no hash configured", "/unconfigured", "swordfish", fiber.StatusUnauthorized},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(fiber.MethodPost, tc.path, nil)
		if tc.key != "" {
			req.Header.Set("X-Ops-Key", tc.key)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("%s: Test() = %v", tc.name, err)
		}
		if resp.StatusCode != tc.status {
			t.Fatalf("%s: status = %d, want %d", tc.name, resp.StatusCode, tc.status)
		}
	}
}

func TestVerifyOpsKey(t *testing.T) {
	hash, err := HashOpsKey("swordfish", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashOpsKey() = %v", err)
	}
	if err := VerifyOpsKey(hash, "swordfish"); err != nil {
		t.Fatalf("VerifyOpsKey() = %v for the right key", err)
	}
	if err := VerifyOpsKey(hash, "marlin"); err == nil {
		t.Fatal("VerifyOpsKey() accepted the wrong key")
	}
}
