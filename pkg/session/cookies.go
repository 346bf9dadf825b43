package session

import (
	"net/http"
	"time"
)

// refreshPath scopes the refresh cookie to the session endpoints so
// downstream services never receive it.
const refreshPath = "/auth"

func (h *Handler) setCookie(w http.ResponseWriter, name, value, path string, expires time.Time) {
	maxAge := int(time.Until(expires).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   h.cfg.CookieDomain,
		Expires:  expires,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearCookies expires both cookies on the shared domain and the
// host-only fallback a misconfigured deployment may have left behind.
func (h *Handler) clearCookies(w http.ResponseWriter) {
	domains := []string{""}
	if h.cfg.CookieDomain != "" {
		domains = append(domains, h.cfg.CookieDomain)
	}
	for _, domain := range domains {
		h.expireCookie(w, h.cfg.AccessCookie, "/", domain)
		h.expireCookie(w, h.cfg.RefreshCookie, refreshPath, domain)
	}
}

func (h *Handler) expireCookie(w http.ResponseWriter, name, path, domain string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Domain:   domain,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func cookieValue(r *http.Request, name string) string {
	if c, err := r.Cookie(name); err == nil {
		return c.Value
	}
	return ""
}
