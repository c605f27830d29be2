package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/stayops/ota-bridge/internal/config"
	"github.com/stayops/ota-bridge/internal/repository"
	"github.com/stayops/ota-bridge/internal/utils"
)

// AuthHandler exchanges tenant API keys for short-lived access tokens.
type AuthHandler struct {
	Cfg     config.Config
	Tenants *repository.TenantRepo
}

func NewAuthHandler(cfg config.Config, t *repository.TenantRepo) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Tenants: t}
}

type tokenReq struct {
	TenantID uint64 `json:"tenant_id"`
	APIKey   string `json:"api_key"`
}

type tokenResp struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
	Role    string    `json:"role"`
}

// Token: verify the API key against its stored hash and issue a JWT.
func (h *AuthHandler) Token(c echo.Context) error {
	var req tokenReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.APIKey = strings.TrimSpace(req.APIKey)
	if req.TenantID == 0 || req.APIKey == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "tenant_id/api_key required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	t, err := h.Tenants.GetByID(ctx, req.TenantID)
	if err != nil {
		if err == repository.ErrTenantNotFound {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !utils.VerifyAPIKey(t.APIKeyHash, req.APIKey) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, t.ID, t.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue token failed"})
	}
	return c.JSON(http.StatusOK, tokenResp{Token: access.Token, Expires: access.Exp, Role: t.Role})
}

// Me: simple protected endpoint.
func (h *AuthHandler) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"tenant_id": c.Get("tenant_id"),
		"role":      c.Get("role"),
	})
}
