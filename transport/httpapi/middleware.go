package httpapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/MrEthical07/sessionguard"
)

const accessContextKey = "sessionguard.access"

// AccessFrom returns the access token validated by RequireAccess.
func AccessFrom(c echo.Context) (sessionguard.AccessResult, bool) {
	res, ok := c.Get(accessContextKey).(sessionguard.AccessResult)
	return res, ok
}

// RequireAccess validates the access token from the Authorization header,
// falling back to the access cookie, and stores the result on the context.
func (h *AuthHTTP) RequireAccess(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
		if !ok {
			accessName, _ := h.Engine.CookieNames()
			if ck, err := c.Cookie(accessName); err == nil && ck.Value != "" {
				token, ok = ck.Value, true
			}
		}
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, echo.Map{
				"error":   "unauthorized",
				"message": "missing access token",
			})
		}

		res, err := h.Engine.ValidateAccess(requestContext(c), token)
		if err != nil {
			return fail(h.logger(c), "access", err)
		}

		c.Set(accessContextKey, res)
		return next(c)
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
