package transport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestErrorHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
		wantLevel   string
	}{
		{
			name:        "fiber error keeps code and message",
			err:         fiber.NewError(fiber.StatusNotFound, "notification not found"),
			wantStatus:  fiber.StatusNotFound,
			wantMessage: "notification not found",
			wantLevel:   "warn",
		},
		{
			name:        "unknown error hides details",
			err:         errors.New("pq: connection refused"),
			wantStatus:  fiber.StatusInternalServerError,
			wantMessage: "internal server error",
			wantLevel:   "error",
		},
		{
			name:        "service unavailable logs as error",
			err:         fiber.NewError(fiber.StatusServiceUnavailable, "store unavailable"),
			wantStatus:  fiber.StatusServiceUnavailable,
			wantMessage: "store unavailable",
			wantLevel:   "error",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zap.DebugLevel)
			app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.New(core))})
			app.Get("/fail", func(c *fiber.Ctx) error { return tt.err })

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/fail", nil))
			if err != nil {
				t.Fatalf("app.Test() error = %v", err)
			}
			body, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}

			var parsed map[string]string
			if err := json.Unmarshal(body, &parsed); err != nil {
				t.Fatalf("json unmarshal error = %v", err)
			}
			if parsed["error"] != tt.wantMessage {
				t.Fatalf("error = %q, want %q", parsed["error"], tt.wantMessage)
			}

			entries := logs.All()
			if len(entries) != 1 {
				t.Fatalf("log entries = %d, want 1", len(entries))
			}
			if got := entries[0].Level.String(); got != tt.wantLevel {
				t.Fatalf("log level = %s, want %s", got, tt.wantLevel)
			}
		})
	}
}
