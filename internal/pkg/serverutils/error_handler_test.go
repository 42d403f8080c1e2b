package serverutils

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newErrorHandlerApp() *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: ErrorHandlerMiddleware,
	})
	app.Get("/missing", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "no such thing")
	})
	app.Get("/broken", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})
	return app
}

func TestErrorHandlerKeepsFiberStatusCode(t *testing.T) {
	app := newErrorHandlerApp()

	res, err := app.Test(httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, fiber.StatusNotFound, res.StatusCode)

	var body Response[any]
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.False(t, body.Success)
	assert.Equal(t, fiber.StatusNotFound, body.Code)
	assert.Equal(t, "no such thing", body.Message)
}

func TestErrorHandlerDefaultsToInternalError(t *testing.T) {
	app := newErrorHandlerApp()

	res, err := app.Test(httptest.NewRequest(http.MethodGet, "/broken", nil))
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, fiber.StatusInternalServerError, res.StatusCode)

	var body Response[any]
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.False(t, body.Success)
	assert.Equal(t, "boom", body.Message)
}
