package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/snaplink/snaplink/internal/http/util"
)

func newAuthTestApp(signer *util.TokenSigner) *fiber.App {
	app := fiber.New()
	app.Use(OwnerAuth(signer))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		return c.SendString(OwnerID(c))
	})
	return app
}

func TestOwnerAuth(t *testing.T) {
	signer := util.NewTokenSigner([]byte("test-secret"), time.Minute)
	app := newAuthTestApp(signer)

	token, err := signer.Issue("owner-42")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	tests := []struct {
		name           string
		header         string
		expectedStatus int
	}{
		{
			name:           "no header passes through anonymous",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "valid bearer token",
			header:         "Bearer " + token,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "garbage token rejected",
			header:         "Bearer not-a-token",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "non-bearer scheme rejected",
			header:         "Basic dXNlcjpwYXNz",
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tt.header)
			}

			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test returned error: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d", tt.expectedStatus, resp.StatusCode)
			}
		})
	}
}

func TestOwnerID_ResolvedFromToken(t *testing.T) {
	signer := util.NewTokenSigner([]byte("test-secret"), time.Minute)
	app := newAuthTestApp(signer)

	token, err := signer.Issue("owner-42")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test returned error: %v", err)
	}
	defer resp.Body.Close()

	buf := make([]byte, 64)
	n, _ := resp.Body.Read(buf)
	if got := string(buf[:n]); got != "owner-42" {
		t.Fatalf("expected owner-42, got %q", got)
	}
}
