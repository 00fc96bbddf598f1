package booking

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medcenter/portal/internal/domain/scheduling"
	"github.com/medcenter/portal/internal/platform/apperr"
	"github.com/medcenter/portal/internal/platform/auth"
	"github.com/medcenter/portal/internal/platform/civil"
	"github.com/medcenter/portal/internal/platform/validate"
	"github.com/medcenter/portal/pkg/pagination"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "X-Idempotency-Replayed"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	signedIn := auth.RequireAuth()
	api.POST("/appointments", h.Reserve, signedIn)
	api.GET("/appointments", h.List, signedIn)
	api.GET("/appointments/:id", h.Get, signedIn)
	api.POST("/appointments/:id/cancel", h.Cancel, signedIn)

	doctorOnly := auth.RequireRole(auth.RoleDoctor)
	api.POST("/appointments/:id/confirm", h.Confirm, doctorOnly)
	api.POST("/appointments/:id/complete", h.Complete, doctorOnly)
	api.GET("/doctors/:id/appointments/unscheduled", h.Unscheduled, doctorOnly)

	// Public occupancy reads; safe to poll and retry.
	api.GET("/doctors/:id/occupied", h.Occupied)
	api.GET("/doctors/:id/availability", h.Availability)
}

func idParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.ToHTTP(apperr.Validation("invalid id"))
	}
	return id, nil
}

type reserveRequest struct {
	DoctorID  string `json:"doctor_id" validate:"required,uuid"`
	PatientID string `json:"patient_id" validate:"omitempty,uuid"`
	Date      string `json:"date" validate:"required,date"`
	Time      string `json:"time" validate:"required,hhmm"`
	Notes     string `json:"notes" validate:"max=1000"`
}

// Reserve books a slot. The Idempotency-Key header is required; a retry
// with the same key returns the original appointment with 200 and the
// X-Idempotency-Replayed header instead of 201.
func (h *Handler) Reserve(c echo.Context) error {
	key := c.Request().Header.Get(HeaderIdempotencyKey)
	if key == "" {
		return apperr.ToHTTP(apperr.Validation(HeaderIdempotencyKey + " header is required"))
	}
	var req reserveRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	date, _ := civil.ParseDate(req.Date)
	rr := ReserveRequest{
		DoctorID:       uuid.MustParse(req.DoctorID),
		Date:           date,
		Time:           civil.MustParseTime(req.Time),
		Notes:          req.Notes,
		IdempotencyKey: key,
	}
	if req.PatientID != "" {
		rr.PatientID = uuid.MustParse(req.PatientID)
	}

	res, err := h.svc.Reserve(c.Request().Context(), rr)
	if err != nil {
		return apperr.Respond(c, err)
	}
	if res.Replayed {
		c.Response().Header().Set(HeaderReplayed, "true")
		return c.JSON(http.StatusOK, res.Appointment)
	}
	return c.JSON(http.StatusCreated, res.Appointment)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apperr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

// List supports ?status=, ?doctor_id=, ?patient_id=, ?from= and ?to= plus
// pagination. Role scoping is applied by the service.
func (h *Handler) List(c echo.Context) error {
	var f Filter
	if v := c.QueryParam("status"); v != "" {
		st, err := ParseStatus(v)
		if err != nil {
			return apperr.ToHTTP(apperr.Validation(err.Error()))
		}
		f.Status = st
	}
	for name, dst := range map[string]**uuid.UUID{"doctor_id": &f.DoctorID, "patient_id": &f.PatientID} {
		if v := c.QueryParam(name); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				return apperr.ToHTTP(apperr.Validation("invalid " + name))
			}
			*dst = &id
		}
	}
	for name, dst := range map[string]*civil.Date{"from": &f.From, "to": &f.To} {
		if v := c.QueryParam(name); v != "" {
			d, err := civil.ParseDate(v)
			if err != nil {
				return apperr.ToHTTP(apperr.Validation(err.Error()))
			}
			*dst = d
		}
	}

	p := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), f, p.Limit, p.Offset)
	if err != nil {
		return apperr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewPage(items, total, p, c.Request().URL.Path, c.QueryParams()))
}

func (h *Handler) Confirm(c echo.Context) error  { return h.apply(c, ActionConfirm) }
func (h *Handler) Cancel(c echo.Context) error   { return h.apply(c, ActionCancel) }
func (h *Handler) Complete(c echo.Context) error { return h.apply(c, ActionComplete) }

func (h *Handler) apply(c echo.Context, action Action) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Apply(c.Request().Context(), id, action)
	if err != nil {
		return apperr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

type occupiedResponse struct {
	DoctorID uuid.UUID    `json:"doctor_id"`
	Date     civil.Date   `json:"date"`
	Times    []civil.Time `json:"times"`
}

func (h *Handler) Occupied(c echo.Context) error {
	doctorID, err := idParam(c)
	if err != nil {
		return err
	}
	date, err := scheduling.DateParam(c)
	if err != nil {
		return err
	}
	times, err := h.svc.OccupiedSlotTimes(c.Request().Context(), doctorID, date)
	if err != nil {
		return apperr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, occupiedResponse{DoctorID: doctorID, Date: date, Times: times})
}

type availabilityResponse struct {
	DoctorID uuid.UUID   `json:"doctor_id"`
	Date     civil.Date  `json:"date"`
	Slots    []SlotState `json:"slots"`
}

func (h *Handler) Availability(c echo.Context) error {
	doctorID, err := idParam(c)
	if err != nil {
		return err
	}
	date, err := scheduling.DateParam(c)
	if err != nil {
		return err
	}
	slots, err := h.svc.Availability(c.Request().Context(), doctorID, date)
	if err != nil {
		return apperr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, availabilityResponse{DoctorID: doctorID, Date: date, Slots: slots})
}

func (h *Handler) Unscheduled(c echo.Context) error {
	doctorID, err := idParam(c)
	if err != nil {
		return err
	}
	items, err := h.svc.Unscheduled(c.Request().Context(), doctorID)
	if err != nil {
		return apperr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, items)
}
