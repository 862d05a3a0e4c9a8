package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/MrEthical07/sessionguard"
)

type AuthHTTP struct {
	Engine *sessionguard.Engine
	Logger *slog.Logger
}

func (h *AuthHTTP) logger(c echo.Context) *slog.Logger {
	l := h.Logger
	if l == nil {
		l = slog.Default()
	}
	return l.With("path", c.Path(), "request_id", c.Response().Header().Get(echo.HeaderXRequestID))
}

// requestContext carries the caller IP into the engine.
func requestContext(c echo.Context) context.Context {
	return sessionguard.WithClientIP(c.Request().Context(), c.RealIP())
}

func platformOf(c echo.Context) (sessionguard.Platform, error) {
	raw := c.Request().Header.Get(HeaderPlatform)
	if raw == "" {
		return sessionguard.PlatformWeb, nil
	}
	return sessionguard.ParsePlatform(raw)
}

// writeSession sets cookies for web sessions and returns tokens in the body
// for mobile ones.
func writeSession(c echo.Context, status int, resp sessionguard.Response) error {
	switch r := resp.(type) {
	case *sessionguard.WebResponse:
		c.SetCookie(r.AccessCookie)
		c.SetCookie(r.RefreshCookie)
		return c.JSON(status, echo.Map{
			"isAccountVerified": r.IsAccountVerified,
		})
	case *sessionguard.MobileResponse:
		return c.JSON(status, r)
	default:
		return errors.New("unexpected session response")
	}
}

type credentialsRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	StrictMode bool   `json:"strictMode"`
}

func (h *AuthHTTP) SignUp(c echo.Context) error {
	l := h.logger(c).With("handler", "auth_sign_up")

	platform, err := platformOf(c)
	if err != nil {
		return badRequest(l, "sign_up", err)
	}
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "sign_up", err)
	}

	resp, err := h.Engine.SignUp(requestContext(c), sessionguard.SignUpInput{
		Email:      req.Email,
		Password:   req.Password,
		Platform:   string(platform),
		StrictMode: req.StrictMode,
	})
	if err != nil {
		return fail(l, "sign_up", err)
	}

	l.Info("sign_up_successful", "platform", platform)
	return writeSession(c, http.StatusCreated, resp)
}

func (h *AuthHTTP) SignIn(c echo.Context) error {
	l := h.logger(c).With("handler", "auth_sign_in")

	platform, err := platformOf(c)
	if err != nil {
		return badRequest(l, "sign_in", err)
	}
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "sign_in", err)
	}

	resp, err := h.Engine.SignIn(requestContext(c), req.Email, req.Password, string(platform))
	if err != nil {
		return fail(l, "sign_in", err)
	}

	l.Info("sign_in_successful", "platform", platform)
	return writeSession(c, http.StatusOK, resp)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// refreshToken reads the refresh cookie for web clients and the JSON body
// for mobile ones.
func (h *AuthHTTP) refreshToken(c echo.Context, platform sessionguard.Platform) (string, error) {
	if platform == sessionguard.PlatformWeb {
		_, name := h.Engine.CookieNames()
		ck, err := c.Cookie(name)
		if err != nil {
			return "", nil
		}
		return ck.Value, nil
	}
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return "", err
	}
	return req.RefreshToken, nil
}

func (h *AuthHTTP) Refresh(c echo.Context) error {
	l := h.logger(c).With("handler", "auth_refresh")

	platform, err := platformOf(c)
	if err != nil {
		return badRequest(l, "refresh", err)
	}
	token, err := h.refreshToken(c, platform)
	if err != nil {
		return badRequest(l, "refresh", err)
	}

	resp, err := h.Engine.Refresh(requestContext(c), string(platform), token)
	if err != nil {
		if platform == sessionguard.PlatformWeb && statusOf(err) == http.StatusUnauthorized {
			h.clearCookies(c)
		}
		return fail(l, "refresh", err)
	}

	return writeSession(c, http.StatusOK, resp)
}

func (h *AuthHTTP) SignOut(c echo.Context) error {
	l := h.logger(c).With("handler", "auth_sign_out")

	platform, err := platformOf(c)
	if err != nil {
		return badRequest(l, "sign_out", err)
	}
	token, err := h.refreshToken(c, platform)
	if err != nil {
		return badRequest(l, "sign_out", err)
	}

	if platform == sessionguard.PlatformWeb {
		h.clearCookies(c)
		if token == "" {
			return c.NoContent(http.StatusNoContent)
		}
	}

	if err := h.Engine.SignOut(requestContext(c), token); err != nil {
		return fail(l, "sign_out", err)
	}

	l.Info("sign_out_successful")
	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHTTP) clearCookies(c echo.Context) {
	for _, ck := range h.Engine.ClearCookies() {
		c.SetCookie(ck)
	}
}

type emailRequest struct {
	Email string `json:"email"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

// sent omits the attempt count so unknown addresses get the same answer.
func sent(c echo.Context) error {
	return c.JSON(http.StatusAccepted, echo.Map{"status": "sent"})
}

func confirmed(c echo.Context, res sessionguard.ConfirmResult) error {
	return c.JSON(http.StatusOK, echo.Map{
		"status":           "confirmed",
		"alreadyConfirmed": res.AlreadyConfirmed,
	})
}

func (h *AuthHTTP) SendVerification(c echo.Context) error {
	l := h.logger(c).With("handler", "auth_verify_send")

	var req emailRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "verify_send", err)
	}
	if _, err := h.Engine.SendAccountVerification(requestContext(c), req.Email); err != nil {
		return fail(l, "verify_send", err)
	}
	return sent(c)
}

func (h *AuthHTTP) ConfirmVerification(c echo.Context) error {
	l := h.logger(c).With("handler", "auth_verify_confirm")

	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "verify_confirm", err)
	}
	res, err := h.Engine.ConfirmAccountVerification(requestContext(c), req.Token)
	if err != nil {
		return fail(l, "verify_confirm", err)
	}
	return confirmed(c, res)
}

func (h *AuthHTTP) SendRecovery(c echo.Context) error {
	l := h.logger(c).With("handler", "auth_recover_send")

	var req emailRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "recover_send", err)
	}
	if _, err := h.Engine.SendPasswordRecovery(requestContext(c), req.Email); err != nil {
		return fail(l, "recover_send", err)
	}
	return sent(c)
}

func (h *AuthHTTP) ConfirmRecovery(c echo.Context) error {
	l := h.logger(c).With("handler", "auth_recover_confirm")

	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "recover_confirm", err)
	}
	res, err := h.Engine.ConfirmPasswordRecovery(requestContext(c), req.Token)
	if err != nil {
		return fail(l, "recover_confirm", err)
	}
	return confirmed(c, res)
}

type resetRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// SendReset runs behind RequireAccess; the user is the access token's
// subject.
func (h *AuthHTTP) SendReset(c echo.Context) error {
	l := h.logger(c).With("handler", "auth_reset_send")

	access, ok := AccessFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, echo.Map{
			"error":   "unauthorized",
			"message": "missing access token",
		})
	}
	var req resetRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "reset_send", err)
	}
	res, err := h.Engine.SendPasswordReset(requestContext(c), access.UserID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		return fail(l, "reset_send", err)
	}
	// The caller is authenticated, so a dropped mail can be reported
	// without revealing whether an account exists.
	if res.MailDropped {
		l.Warn("reset_send_mail_dropped", "status", http.StatusServiceUnavailable, "user_id", access.UserID)
		return echo.NewHTTPError(http.StatusServiceUnavailable, echo.Map{
			"error":   "mail_unavailable",
			"message": "mail could not be queued, try again later",
		})
	}
	return sent(c)
}

func (h *AuthHTTP) ConfirmReset(c echo.Context) error {
	l := h.logger(c).With("handler", "auth_reset_confirm")

	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "reset_confirm", err)
	}
	res, err := h.Engine.ConfirmPasswordReset(requestContext(c), req.Token)
	if err != nil {
		return fail(l, "reset_confirm", err)
	}
	return confirmed(c, res)
}
