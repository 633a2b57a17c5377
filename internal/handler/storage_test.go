package handler_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studysync-backend/internal/config"
	"studysync-backend/internal/handler"
)

// storageApp wires the upload routes against a deployment with no S3
// service configured.
func storageApp(t *testing.T) *fiber.App {
	t.Helper()
	cfg := &config.Config{
		Session: config.SessionConfig{MaxActionsPerRoom: 100, MaxNoteBytes: 1 << 20},
	}
	hub := handler.NewRoomHub(cfg, nil, nil, nil, "test")
	h := handler.NewStorageHandler(nil, nil, hub, cfg)

	app := fiber.New()
	app.Post("/api/rooms/:roomCode/files/presign", h.GetPresignedURL)
	app.Post("/api/rooms/:roomCode/files/confirm", h.ConfirmUpload)
	return app
}

func TestConfirmUploadWithoutS3Returns503(t *testing.T) {
	app := storageApp(t)

	req := httptest.NewRequest(fiber.MethodPost, "/api/rooms/room-1/files/confirm",
		strings.NewReader(`{"name":"notes.pdf","key":"rooms/room-1/notes.pdf"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestPresignWithoutS3Returns503(t *testing.T) {
	app := storageApp(t)

	req := httptest.NewRequest(fiber.MethodPost, "/api/rooms/room-1/files/presign",
		strings.NewReader(`{"file_name":"notes.pdf","content_type":"application/pdf"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}
