package console

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vincemic/ai-fhir-pit/internal/mapping"
	"github.com/vincemic/ai-fhir-pit/internal/platform/auth"
	"github.com/vincemic/ai-fhir-pit/internal/settings"
	"github.com/vincemic/ai-fhir-pit/internal/synthetic"
	"github.com/vincemic/ai-fhir-pit/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.CanRead...))
	read.GET("/settings", h.GetSettings)
	read.GET("/settings/defaults", h.GetDefaultSettings)
	read.POST("/settings/test", h.TestConnection)
	read.GET("/resource-types", h.ListResourceTypes)
	read.GET("/capabilities", h.GetCapabilities)
	read.GET("/resources/:type", h.Search)
	read.POST("/resources/page", h.FollowLink)
	read.GET("/resources/:type/:id", h.Read)
	read.GET("/resources/:type/:id/references", h.References)
	read.GET("/forms/:type", h.NewForm)
	read.GET("/forms/:type/:id", h.EditForm)
	read.POST("/forms/:type/preview", h.Preview)
	read.POST("/fhirpath", h.Evaluate)

	write := api.Group("", auth.RequireRole(auth.CanWrite...))
	write.POST("/resources/:type", h.Create)
	write.PUT("/resources/:type/:id", h.Update)
	write.POST("/synthetic", h.GenerateSynthetic)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.PUT("/settings", h.UpdateSettings)
	admin.DELETE("/settings", h.ResetSettings)
}

// Health answers liveness probes.
func Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// bind decodes the request body only. echo's Bind would also copy path
// params into map targets such as FormState.
func bind(c echo.Context, v interface{}) error {
	if err := (&echo.DefaultBinder{}).BindBody(c, v); err != nil {
		return fmt.Errorf("%w: malformed JSON body", ErrInvalidRequest)
	}
	return nil
}

// -- Settings --

func (h *Handler) GetSettings(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Settings(c.Request().Context()))
}

func (h *Handler) GetDefaultSettings(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.DefaultSettings())
}

func (h *Handler) UpdateSettings(c echo.Context) error {
	var p settings.Patch
	if err := bind(c, &p); err != nil {
		return err
	}
	s, err := h.svc.UpdateSettings(c.Request().Context(), p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) ResetSettings(c echo.Context) error {
	s, err := h.svc.ResetSettings(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}

type testConnectionRequest struct {
	ServerURL string `json:"serverUrl"`
}

func (h *Handler) TestConnection(c echo.Context) error {
	var req testConnectionRequest
	if c.Request().ContentLength != 0 {
		if err := bind(c, &req); err != nil {
			return err
		}
	}
	result, err := h.svc.TestConnection(c.Request().Context(), req.ServerURL)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// -- Browsing --

func (h *Handler) ListResourceTypes(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.ResourceTypes())
}

func (h *Handler) GetCapabilities(c echo.Context) error {
	doc, err := h.svc.Capabilities(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, doc)
}

func (h *Handler) Search(c echo.Context) error {
	result, err := h.svc.Search(c.Request().Context(), SearchRequest{
		ResourceType: c.Param("type"),
		SearchField:  c.QueryParam("field"),
		SearchTerm:   c.QueryParam("term"),
		Sort:         c.QueryParam("_sort"),
		Page:         pagination.FromContext(c),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

type followLinkRequest struct {
	URL string `json:"url"`
}

func (h *Handler) FollowLink(c echo.Context) error {
	var req followLinkRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	result, err := h.svc.FollowLink(c.Request().Context(), req.URL)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) Read(c echo.Context) error {
	view, err := h.svc.Read(c.Request().Context(), c.Param("type"), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) References(c echo.Context) error {
	refs, err := h.svc.References(c.Request().Context(), c.Param("type"), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, refs)
}

// -- Forms --

func (h *Handler) NewForm(c echo.Context) error {
	form, err := h.svc.NewForm(c.Param("type"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, form)
}

func (h *Handler) EditForm(c echo.Context) error {
	form, err := h.svc.EditForm(c.Request().Context(), c.Param("type"), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, form)
}

type previewRequest struct {
	Mode string            `json:"mode"`
	ID   string            `json:"id,omitempty"`
	Form mapping.FormState `json:"form"`
}

func (h *Handler) Preview(c echo.Context) error {
	var req previewRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	mode := mapping.ModeCreate
	if req.Mode != "" {
		var err error
		if mode, err = mapping.ParseMode(req.Mode); err != nil {
			return err
		}
	}
	doc, err := h.svc.Preview(c.Request().Context(), c.Param("type"), req.Form, mode, req.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, doc)
}

func (h *Handler) Create(c echo.Context) error {
	var form mapping.FormState
	if err := bind(c, &form); err != nil {
		return err
	}
	view, err := h.svc.Create(c.Request().Context(), c.Param("type"), form)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, view)
}

func (h *Handler) Update(c echo.Context) error {
	var form mapping.FormState
	if err := bind(c, &form); err != nil {
		return err
	}
	view, err := h.svc.Update(c.Request().Context(), c.Param("type"), c.Param("id"), form)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// -- Inspection and generation --

func (h *Handler) Evaluate(c echo.Context) error {
	var req EvaluateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	result, err := h.svc.Evaluate(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) GenerateSynthetic(c echo.Context) error {
	var req synthetic.Request
	if err := bind(c, &req); err != nil {
		return err
	}
	result, err := h.svc.GenerateSynthetic(c.Request().Context(), req, nil)
	if err != nil {
		return err
	}
	status := http.StatusOK
	if !result.Success {
		status = http.StatusMultiStatus
	}
	return c.JSON(status, result)
}
