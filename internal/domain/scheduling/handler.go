package scheduling

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medcenter/portal/internal/platform/apperr"
	"github.com/medcenter/portal/internal/platform/auth"
	"github.com/medcenter/portal/internal/platform/civil"
	"github.com/medcenter/portal/internal/platform/validate"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/doctors/:id/schedule", h.ListEntries)
	api.GET("/doctors/:id/slot-times", h.SlotTimes)

	writers := auth.RequireRole(auth.RoleDoctor)
	api.POST("/doctors/:id/schedule", h.AddEntry, writers)
	api.DELETE("/doctors/:id/schedule/:entryId", h.RemoveEntry, writers)
}

func uuidParam(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.ToHTTP(apperr.Validation("invalid " + name))
	}
	return id, nil
}

// DateParam parses the required ?date=YYYY-MM-DD query parameter.
func DateParam(c echo.Context) (civil.Date, error) {
	raw := c.QueryParam("date")
	if raw == "" {
		return civil.Date{}, apperr.ToHTTP(apperr.Validation("date query parameter is required"))
	}
	d, err := civil.ParseDate(raw)
	if err != nil {
		return civil.Date{}, apperr.ToHTTP(apperr.Validation(err.Error()))
	}
	return d, nil
}

type entryRequest struct {
	DayOfWeek *int   `json:"day_of_week" validate:"required,gte=0,lte=6"`
	StartTime string `json:"start_time" validate:"required,hhmm"`
	EndTime   string `json:"end_time" validate:"required,hhmm"`
}

func (h *Handler) AddEntry(c echo.Context) error {
	doctorID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	var req entryRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	e := &ScheduleEntry{
		DoctorID:  doctorID,
		DayOfWeek: time.Weekday(*req.DayOfWeek),
		StartTime: civil.MustParseTime(req.StartTime),
		EndTime:   civil.MustParseTime(req.EndTime),
	}
	if err := h.svc.AddEntry(c.Request().Context(), e); err != nil {
		return apperr.Respond(c, err)
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) RemoveEntry(c echo.Context) error {
	doctorID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	entryID, err := uuidParam(c, "entryId")
	if err != nil {
		return err
	}
	if err := h.svc.RemoveEntry(c.Request().Context(), doctorID, entryID); err != nil {
		return apperr.Respond(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListEntries(c echo.Context) error {
	doctorID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	entries, err := h.svc.ListEntries(c.Request().Context(), doctorID)
	if err != nil {
		return apperr.Respond(c, err)
	}
	if entries == nil {
		entries = []*ScheduleEntry{}
	}
	return c.JSON(http.StatusOK, entries)
}

type slotTimesResponse struct {
	DoctorID uuid.UUID    `json:"doctor_id"`
	Date     civil.Date   `json:"date"`
	Times    []civil.Time `json:"times"`
}

func (h *Handler) SlotTimes(c echo.Context) error {
	doctorID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	date, err := DateParam(c)
	if err != nil {
		return err
	}
	times, err := h.svc.AvailableSlotTimes(c.Request().Context(), doctorID, date)
	if err != nil {
		return apperr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, slotTimesResponse{DoctorID: doctorID, Date: date, Times: times})
}
