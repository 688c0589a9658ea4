package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/vegwatch/vegwatch/internal/core/domain"
)

// scanRequest is the body of POST /v1/scans. Area is the target ground
// area in square meters; nothing else is configurable per request.
type scanRequest struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	AreaM2 float64 `json:"area_m2"`
}

// StartScanHandler validates the request and launches a scan in the
// background. Returns 202 with the running scan; progress is streamed
// on the WebSocket channel and the result is fetched via GET.
func StartScanHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req scanRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body: "+err.Error())
		}

		scan, err := deps.Scans.Start(c.Context(), req.Lat, req.Lon, req.AreaM2)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidArea) {
				return errBadRequest(c, domain.ErrInvalidArea.Error())
			}
			if errors.Is(err, domain.ErrProviderUnavailable) {
				return errBadGateway(c, err.Error())
			}
			// coordinate range violations and the like
			return errBadRequest(c, err.Error())
		}

		return c.Status(fiber.StatusAccepted).JSON(scan)
	}
}

// GetScanHandler returns a scan with its yearly series and image paths.
func GetScanHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "scan id is required")
		}

		scan, err := deps.Scans.Get(c.Context(), id)
		if err != nil {
			if errors.Is(err, domain.ErrScanNotFound) {
				return errNotFound(c, "scan not found")
			}
			return errInternal(c, err.Error())
		}

		if scan.Status.Terminal() {
			c.Set("Cache-Control", "public, max-age=3600")
		} else {
			c.Set("Cache-Control", "no-cache")
		}
		return c.JSON(scan)
	}
}

// ListScansHandler lists recent scans with offset/limit pagination.
func ListScansHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		offset := c.QueryInt("offset", 0)
		limit := c.QueryInt("limit", 20)
		if offset < 0 {
			offset = 0
		}
		if limit <= 0 || limit > 100 {
			limit = 20
		}

		scans, total, err := deps.Scans.List(c.Context(), offset, limit)
		if err != nil {
			return errInternal(c, err.Error())
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: scans, Pagination: pg})
	}
}

// CancelScanHandler requests cooperative cancellation of a running scan.
func CancelScanHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "scan id is required")
		}

		if err := deps.Scans.Cancel(id); err != nil {
			if errors.Is(err, domain.ErrScanNotRunning) {
				return errConflict(c, "scan is not running")
			}
			return errInternal(c, err.Error())
		}

		return c.JSON(fiber.Map{"status": "canceling", "id": id})
	}
}
