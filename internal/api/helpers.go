package api

import (
	"errors"
	"net/http"
	"os"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/strata/pkg/blockfile"
)

var errMissingPath = errors.New("path query parameter is required")

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request", msg)
}

func writeOpenError(c *echo.Context, err error) error {
	switch {
	case errors.Is(err, errMissingPath):
		return writeBadRequest(c, err.Error())
	case errors.Is(err, os.ErrNotExist):
		return writeError(c, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, blockfile.ErrUnknownFormat),
		errors.Is(err, blockfile.ErrUnsupportedVersion):
		return writeError(c, http.StatusUnprocessableEntity, "unsupported_format", err.Error())
	default:
		return writeError(c, http.StatusUnprocessableEntity, "load_failed", err.Error())
	}
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, map[string]any{
		"error": map[string]string{
			"type":    errType,
			"message": msg,
		},
	})
}
