package tracking

import (
	"errors"

	"backend-fairfieldcars/internal/booking"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, m *Manager, authMiddleware fiber.Handler) {
	r.Post("/:bookingID/start", authMiddleware, func(c *fiber.Ctx) error {
		snap, err := m.Start(c.Context(), c.Params("bookingID"))
		if err != nil {
			return statusError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(snap)
	})

	r.Post("/:bookingID/stop", authMiddleware, func(c *fiber.Ctx) error {
		m.Stop(c.Params("bookingID"))
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Patch("/:bookingID/status", authMiddleware, func(c *fiber.Ctx) error {
		var req struct {
			Status Status `json:"status"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if !req.Status.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "unknown status")
		}
		if err := m.UpdateStatus(c.Context(), c.Params("bookingID"), req.Status); err != nil {
			return statusError(err)
		}
		snap, err := m.Snapshot(c.Context(), c.Params("bookingID"))
		if err != nil {
			// terminal transitions drop the live session; serve the persisted row
			if errors.Is(err, ErrSnapshotNotFound) {
				return c.JSON(fiber.Map{"booking_id": c.Params("bookingID"), "status": req.Status})
			}
			return statusError(err)
		}
		return c.JSON(snap)
	})

	// device ingest path: externally reported samples land on the same
	// session flow the simulator feeds
	r.Post("/:bookingID/samples", authMiddleware, func(c *fiber.Ctx) error {
		var sample Sample
		if err := c.BodyParser(&sample); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if sample.Timestamp.IsZero() {
			return fiber.NewError(fiber.StatusBadRequest, "timestamp_utc required")
		}
		if err := m.OnSample(c.Context(), c.Params("bookingID"), sample); err != nil {
			return statusError(err)
		}
		return c.SendStatus(fiber.StatusAccepted)
	})

	// poll fallback for observers without a push channel
	r.Get("/:bookingID", func(c *fiber.Ctx) error {
		snap, err := m.Snapshot(c.Context(), c.Params("bookingID"))
		if err != nil {
			return statusError(err)
		}
		return c.JSON(snap)
	})
}

func statusError(err error) error {
	switch {
	case errors.Is(err, booking.ErrNotFound), errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSnapshotNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrAlreadyTracking), errors.Is(err, ErrInvalidTransition):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, ErrAddressResolution):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
