package doctors

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medcenter/portal/internal/platform/apperr"
	"github.com/medcenter/portal/internal/platform/auth"
	"github.com/medcenter/portal/internal/platform/validate"
	"github.com/medcenter/portal/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Public directory
	api.GET("/doctors", h.ListDoctors)
	api.GET("/doctors/:id", h.GetDoctor)
	api.GET("/doctors/:id/avatar", h.GetAvatar)

	// Doctor self-service; ownership is checked by the service.
	doctorOnly := auth.RequireRole(auth.RoleDoctor)
	api.GET("/doctors/me/profile", h.GetMyProfile, doctorOnly)
	api.PUT("/doctors/me/profile", h.PutMyProfile, doctorOnly)
	api.PUT("/doctors/:id/published", h.SetPublished, doctorOnly)
	api.POST("/doctors/:id/avatar", h.UploadAvatar, doctorOnly)
	api.DELETE("/doctors/:id/avatar", h.DeleteAvatar, doctorOnly)
}

func doctorID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.ToHTTP(apperr.Validation("invalid doctor id"))
	}
	return id, nil
}

func (h *Handler) ListDoctors(c echo.Context) error {
	filter := ListFilter{
		Specialty:  c.QueryParam("specialty"),
		Department: c.QueryParam("department"),
		Query:      c.QueryParam("q"),
	}
	all, err := h.svc.List(c.Request().Context(), filter)
	if err != nil {
		return apperr.Respond(c, err)
	}

	pg := pagination.FromContext(c)
	start := min(pg.Offset, len(all))
	end := min(start+pg.Limit, len(all))
	return c.JSON(http.StatusOK, pagination.NewPage(all[start:end], len(all), pg, c.Path(), c.QueryParams()))
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := doctorID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apperr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) GetMyProfile(c echo.Context) error {
	me, err := auth.IdentityFrom(c.Request().Context())
	if err != nil {
		return apperr.Respond(c, err)
	}
	p, err := h.svc.Profile(c.Request().Context(), me.UserID)
	if err != nil {
		return apperr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) PutMyProfile(c echo.Context) error {
	me, err := auth.IdentityFrom(c.Request().Context())
	if err != nil {
		return apperr.Respond(c, err)
	}
	var in ProfileInput
	if err := validate.BindAndValidate(c, &in); err != nil {
		return err
	}
	p, err := h.svc.UpsertProfile(c.Request().Context(), me.UserID, in)
	if err != nil {
		return apperr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

type publishRequest struct {
	Published *bool `json:"published" validate:"required"`
}

func (h *Handler) SetPublished(c echo.Context) error {
	id, err := doctorID(c)
	if err != nil {
		return err
	}
	var req publishRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.svc.SetPublished(c.Request().Context(), id, *req.Published); err != nil {
		return apperr.Respond(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) UploadAvatar(c echo.Context) error {
	id, err := doctorID(c)
	if err != nil {
		return err
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return apperr.ToHTTP(apperr.Validation("multipart field \"file\" is required"))
	}
	f, err := fh.Open()
	if err != nil {
		return apperr.ToHTTP(apperr.Validation("unreadable upload"))
	}
	defer f.Close()

	blob, err := h.svc.UploadAvatar(c.Request().Context(), id, fh.Header.Get(echo.HeaderContentType), f)
	if err != nil {
		return apperr.Respond(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"photo_url":    AvatarPath(id),
		"content_type": blob.ContentType,
		"size":         blob.Size,
	})
}

func (h *Handler) DeleteAvatar(c echo.Context) error {
	id, err := doctorID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteAvatar(c.Request().Context(), id); err != nil {
		return apperr.Respond(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetAvatar(c echo.Context) error {
	id, err := doctorID(c)
	if err != nil {
		return err
	}
	rc, blob, err := h.svc.Avatar(c.Request().Context(), id)
	if err != nil {
		return apperr.Respond(c, err)
	}
	defer rc.Close()

	c.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(blob.Size, 10))
	c.Response().Header().Set("Cache-Control", "public, max-age=300")
	c.Response().Header().Set("ETag", `"`+blob.Hash+`"`)
	return c.Stream(http.StatusOK, blob.ContentType, rc)
}
