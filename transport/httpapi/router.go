// Package httpapi exposes the credential lifecycle over HTTP with echo.
//
// Requests pick their platform with the X-Client-Platform header ("web" by
// default, or "mobile"). Web sessions travel as cookies, mobile sessions as
// JSON token pairs.
package httpapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
)

// HeaderPlatform selects the session shape of a request.
const HeaderPlatform = "X-Client-Platform"

type Deps struct {
	AuthHandler *AuthHTTP
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	// Ready backs /health/ready; nil reports ready.
	Ready func(ctx context.Context) error
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready != nil {
			if err := d.Ready(c.Request().Context()); err != nil {
				return c.NoContent(http.StatusServiceUnavailable)
			}
		}
		return c.NoContent(http.StatusOK)
	})
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics))
	}

	h := d.AuthHandler
	auth := e.Group("/auth")

	auth.POST("/sign-up", h.SignUp)
	auth.POST("/sign-in", h.SignIn)
	auth.POST("/refresh", h.Refresh)
	auth.POST("/sign-out", h.SignOut)

	auth.POST("/verify/send", h.SendVerification)
	auth.POST("/verify/confirm", h.ConfirmVerification)
	auth.POST("/recover/send", h.SendRecovery)
	auth.POST("/recover/confirm", h.ConfirmRecovery)
	auth.POST("/reset/send", h.SendReset, h.RequireAccess)
	auth.POST("/reset/confirm", h.ConfirmReset)
}
