package browser

import (
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"

	"github.com/easyvinted/publisher/internal/models"
)

// toCookieParams converts a persisted session into CDP cookie params.
// Expired cookies are dropped; cookies without a domain get fallbackDomain.
func toCookieParams(session *models.Session, fallbackDomain string, now time.Time) []*network.CookieParam {
	usable := session.Usable(now)
	params := make([]*network.CookieParam, 0, len(usable))

	for _, c := range usable {
		domain := c.Domain
		if domain == "" {
			domain = fallbackDomain
		}
		// ChromeDP rejects a leading dot
		domain = strings.TrimPrefix(domain, ".")

		path := c.Path
		if path == "" {
			path = "/"
		}

		param := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   domain,
			Path:     path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			ts := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			param.Expires = &ts
		}
		switch strings.ToLower(c.SameSite) {
		case "strict":
			param.SameSite = network.CookieSameSiteStrict
		case "lax":
			param.SameSite = network.CookieSameSiteLax
		case "none":
			param.SameSite = network.CookieSameSiteNone
		}

		params = append(params, param)
	}

	return params
}

// fromNetworkCookies captures browser cookies in the session file layout
func fromNetworkCookies(cookies []*network.Cookie) *models.Session {
	session := &models.Session{Cookies: make([]models.Cookie, 0, len(cookies))}
	for _, c := range cookies {
		if c == nil {
			continue
		}
		cookie := models.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		}
		if !c.Session && c.Expires > 0 {
			cookie.Expires = c.Expires
		}
		session.Cookies = append(session.Cookies, cookie)
	}
	return session
}
