package sessionguard

import (
	"net/http"
	"strings"

	"github.com/MrEthical07/sessionguard/internal/ledger"
)

// Platform selects the shape of a session response.
type Platform string

const (
	PlatformWeb    Platform = "web"
	PlatformMobile Platform = "mobile"
)

// ParsePlatform accepts "web" and "mobile" in any case.
func ParsePlatform(raw string) (Platform, error) {
	switch p := Platform(strings.ToLower(strings.TrimSpace(raw))); p {
	case PlatformWeb, PlatformMobile:
		return p, nil
	default:
		return "", ErrUnknownPlatform
	}
}

// Response is a session handed to a client. It is either a *WebResponse or
// a *MobileResponse; no other implementations exist.
type Response interface {
	AccountVerified() bool
	isResponse()
}

// WebResponse carries the session as a cookie pair.
type WebResponse struct {
	AccessCookie      *http.Cookie
	RefreshCookie     *http.Cookie
	IsAccountVerified bool
}

// MobileResponse carries the session as explicit token strings.
type MobileResponse struct {
	AccessToken       string `json:"accessToken"`
	RefreshToken      string `json:"refreshToken"`
	IsAccountVerified bool   `json:"isAccountVerified"`
}

func (r *WebResponse) AccountVerified() bool    { return r.IsAccountVerified }
func (r *MobileResponse) AccountVerified() bool { return r.IsAccountVerified }

func (*WebResponse) isResponse()    {}
func (*MobileResponse) isResponse() {}

// buildResponse seals the issued pair for transport and shapes it for the
// platform.
func (e *Engine) buildResponse(platform Platform, issued ledger.Issued, verified bool) (Response, error) {
	access, err := e.sealer.Seal(issued.AccessToken)
	if err != nil {
		return nil, wrap(ErrTokenIssue, err)
	}
	refresh, err := e.sealer.Seal(issued.RefreshToken)
	if err != nil {
		return nil, wrap(ErrTokenIssue, err)
	}

	switch platform {
	case PlatformWeb:
		return &WebResponse{
			AccessCookie:      e.cookie(e.config.Cookies.AccessName, access, int(e.config.Tokens.Access.TTL.Seconds())),
			RefreshCookie:     e.cookie(e.config.Cookies.RefreshName, refresh, int(e.config.Tokens.Refresh.TTL.Seconds())),
			IsAccountVerified: verified,
		}, nil
	case PlatformMobile:
		return &MobileResponse{
			AccessToken:       access,
			RefreshToken:      refresh,
			IsAccountVerified: verified,
		}, nil
	default:
		return nil, ErrUnknownPlatform
	}
}

func (e *Engine) cookie(name, value string, maxAge int) *http.Cookie {
	c := e.config.Cookies
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     c.Path,
		Domain:   c.Domain,
		MaxAge:   maxAge,
		Secure:   c.Secure,
		HttpOnly: true,
		SameSite: c.SameSite,
	}
}

// ClearCookies returns expired cookies that remove a web session from the
// browser.
func (e *Engine) ClearCookies() []*http.Cookie {
	return []*http.Cookie{
		e.cookie(e.config.Cookies.AccessName, "", -1),
		e.cookie(e.config.Cookies.RefreshName, "", -1),
	}
}

// CookieNames returns the configured access and refresh cookie names.
func (e *Engine) CookieNames() (access, refresh string) {
	return e.config.Cookies.AccessName, e.config.Cookies.RefreshName
}
