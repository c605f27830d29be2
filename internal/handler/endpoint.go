package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/stayops/ota-bridge/internal/model"
	"github.com/stayops/ota-bridge/internal/repository"
	"github.com/stayops/ota-bridge/internal/utils"
	"github.com/stayops/ota-bridge/internal/webhook"
)

// EndpointHandler implements the tenant-facing webhook endpoint admin
// API.  Every operation is scoped to the tenant carried in the JWT.
type EndpointHandler struct {
	Endpoints *repository.EndpointRepo
}

func NewEndpointHandler(e *repository.EndpointRepo) *EndpointHandler {
	return &EndpointHandler{Endpoints: e}
}

// endpointReq is the mutable configuration accepted on create/update.
type endpointReq struct {
	Name        string              `json:"name"`
	URL         string              `json:"url"`
	Events      []string            `json:"events"`
	IsActive    *bool               `json:"is_active"`
	Method      string              `json:"method"`
	Headers     map[string]string   `json:"headers"`
	ContentType string              `json:"content_type"`
	TimeoutSecs int                 `json:"timeout_seconds"`
	Retry       *model.RetryPolicy  `json:"retry_policy"`
	Filter      *model.EndpointFilter `json:"filter"`
}

// Create handles POST /v1/webhooks/endpoints.  The generated signing
// secret appears in this response and never again.
func (h *EndpointHandler) Create(c echo.Context) error {
	tenantID := tenantFromContext(c)
	var req endpointReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	e, err := req.toEndpoint(tenantID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	secret, err := utils.NewEndpointSecret()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "secret generation failed"})
	}
	e.Secret = secret

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Endpoints.Create(ctx, e); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create endpoint failed"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"endpoint": e, "secret": secret})
}

// List handles GET /v1/webhooks/endpoints.
func (h *EndpointHandler) List(c echo.Context) error {
	tenantID := tenantFromContext(c)
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	list, err := h.Endpoints.ListByTenant(ctx, tenantID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list endpoints failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"endpoints": list})
}

// Get handles GET /v1/webhooks/endpoints/:id.
func (h *EndpointHandler) Get(c echo.Context) error {
	tenantID := tenantFromContext(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid endpoint id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	e, err := h.Endpoints.GetForTenant(ctx, id, tenantID)
	if err != nil {
		if err == repository.ErrEndpointNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "endpoint not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load endpoint failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"endpoint": e})
}

// Update handles PUT /v1/webhooks/endpoints/:id.  The secret and the
// accumulated statistics cannot be changed through this route.
func (h *EndpointHandler) Update(c echo.Context) error {
	tenantID := tenantFromContext(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid endpoint id"})
	}
	var req endpointReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	e, err := req.toEndpoint(tenantID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	e.ID = id

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Endpoints.Update(ctx, e); err != nil {
		if err == repository.ErrEndpointNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "endpoint not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update endpoint failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"endpoint": e})
}

// Deactivate handles DELETE /v1/webhooks/endpoints/:id.  The row is
// kept so historical stats remain queryable; only is_active flips.
func (h *EndpointHandler) Deactivate(c echo.Context) error {
	tenantID := tenantFromContext(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid endpoint id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Endpoints.Deactivate(ctx, id, tenantID); err != nil {
		if err == repository.ErrEndpointNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "endpoint not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "deactivate endpoint failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

// Stats handles GET /v1/webhooks/endpoints/:id/stats.
func (h *EndpointHandler) Stats(c echo.Context) error {
	tenantID := tenantFromContext(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid endpoint id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	e, err := h.Endpoints.GetForTenant(ctx, id, tenantID)
	if err != nil {
		if err == repository.ErrEndpointNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "endpoint not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load endpoint failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"endpoint_id":  e.ID,
		"stats":        e.Stats,
		"failure_rate": e.Stats.FailureRate(),
		"uptime_pct":   e.Stats.Uptime(),
		"health":       e.Health,
	})
}

// toEndpoint validates the request and builds a model endpoint with
// defaults filled in.
func (req *endpointReq) toEndpoint(tenantID uint64) (*model.WebhookEndpoint, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("url must be a valid http(s) URL")
	}
	if len(req.Events) == 0 {
		return nil, fmt.Errorf("at least one event subscription is required")
	}
	for _, ev := range req.Events {
		if !model.ValidSubscription(ev) {
			return nil, fmt.Errorf("unknown event type %q", ev)
		}
	}
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodPost
	}
	if method != http.MethodPost && method != http.MethodPut {
		return nil, fmt.Errorf("method must be POST or PUT")
	}
	timeout := 30 * time.Second
	if req.TimeoutSecs != 0 {
		if req.TimeoutSecs < 1 || req.TimeoutSecs > 300 {
			return nil, fmt.Errorf("timeout_seconds must be between 1 and 300")
		}
		timeout = time.Duration(req.TimeoutSecs) * time.Second
	}
	retry := model.DefaultRetryPolicy()
	if req.Retry != nil {
		retry = *req.Retry
		if retry.MaxRetries < 0 || retry.MaxRetries > 10 {
			return nil, fmt.Errorf("retry max_retries must be between 0 and 10")
		}
		if retry.BackoffMultiplier < 1 || retry.BackoffMultiplier > 10 {
			return nil, fmt.Errorf("retry backoff_multiplier must be between 1 and 10")
		}
		if retry.InitialDelay < 0 || retry.MaxDelay < 0 {
			return nil, fmt.Errorf("retry delays must be non-negative")
		}
		for _, class := range retry.RetryOn {
			switch class {
			case model.ErrClassTimeout, model.ErrClassConnection,
				model.ErrClassHTTP4xx, model.ErrClassHTTP5xx, model.ErrClassOther:
			default:
				return nil, fmt.Errorf("unknown retry_on class %q", class)
			}
		}
	}
	filter := model.EndpointFilter{}
	if req.Filter != nil {
		filter = *req.Filter
		for _, cond := range filter.Conditions {
			if strings.TrimSpace(cond.Field) == "" {
				return nil, fmt.Errorf("filter condition field is required")
			}
			if !webhook.KnownOperator(cond.Operator) {
				return nil, fmt.Errorf("unknown filter operator %q", cond.Operator)
			}
		}
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return &model.WebhookEndpoint{
		TenantID:    tenantID,
		Name:        req.Name,
		URL:         req.URL,
		Events:      req.Events,
		IsActive:    active,
		Method:      method,
		Headers:     req.Headers,
		ContentType: contentType,
		Timeout:     timeout,
		Retry:       retry,
		Filter:      filter,
	}, nil
}
