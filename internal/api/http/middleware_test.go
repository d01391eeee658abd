package http

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/observability"
	"github.com/spec-kit/helpdesk-engine/pkg/util"
)

func newMiddlewareApp(metrics *observability.Metrics) *fiber.App {
	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), metrics, time.Second)

	app.Get("/ok", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})
	app.Get("/invalid-unit", func(c *fiber.Ctx) error {
		return util.NewInvalidUnit("facilities")
	})
	app.Get("/panic", func(c *fiber.Ctx) error {
		panic("handler bug")
	})
	app.Get("/deadline", func(c *fiber.Ctx) error {
		if _, ok := c.UserContext().Deadline(); !ok {
			return util.NewInternalError(nil)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func TestErrorMiddlewareMapsDomainErrors(t *testing.T) {
	metrics := observability.NewMetrics()
	app := newMiddlewareApp(metrics)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/invalid-unit", nil))
	if err != nil {
		t.Fatalf("Test() = %v", err)
	}
	if resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusUnprocessableEntity)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), util.CodeInvalidUnit) {
		t.Fatalf("body = %s, want code %s", body, util.CodeInvalidUnit)
	}
	if !strings.Contains(string(body), "facilities") {
		t.Fatalf("body = %s, want the offending unit in details", body)
	}

	key := "http_errors|/invalid-unit|GET|" + util.CodeInvalidUnit
	if got := metrics.Snapshot()[key]; got != 1 {
		t.Fatalf("%s = %d, want 1", key, got)
	}
}

func TestErrorMiddlewareRecoversPanics(t *testing.T) {
	metrics := observability.NewMetrics()
	app := newMiddlewareApp(metrics)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/panic", nil))
	if err != nil {
		t.Fatalf("Test() = %v", err)
	}
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusInternalServerError)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), util.CodeInternal) {
		t.Fatalf("body = %s, want code %s", body, util.CodeInternal)
	}
}

func TestRequestLoggerCountsRequests(t *testing.T) {
	metrics := observability.NewMetrics()
	app := newMiddlewareApp(metrics)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/ok", nil))
	if err != nil {
		t.Fatalf("Test() = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusOK)
	}
	if got := metrics.Snapshot()["http_requests|/ok|GET|200"]; got != 1 {
		t.Fatalf("http_requests counter = %d, want 1", got)
	}
}

func TestRequestTimeoutSetsDeadline(t *testing.T) {
	metrics := observability.NewMetrics()
	app := newMiddlewareApp(metrics)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/deadline", nil))
	if err != nil {
		t.Fatalf("Test() = %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusNoContent)
	}
}
