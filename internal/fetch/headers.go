package fetch

import (
	"net/url"
	"strings"

	"nowplaying/internal/models"
)

// DefaultHeaders returns the per-type Accept headers used when a connection
// has none stored.
func DefaultHeaders(connectionType string) map[string]string {
	base := map[string]string{
		"Cache-Control": "no-cache",
		"Pragma":        "no-cache",
	}
	switch strings.ToLower(connectionType) {
	case models.TypeHTTPXML:
		base["Accept"] = "application/xml, text/xml;q=0.9, */*;q=0.8"
	case models.TypeHTTPText:
		base["Accept"] = "text/plain, */*;q=0.8"
	case models.TypeRSS:
		base["Accept"] = "application/rss+xml, application/xml;q=0.9, */*;q=0.8"
	default:
		base["Accept"] = "application/json, text/javascript, */*; q=0.01"
	}
	return base
}

// BrowserHeaders extends the defaults with the fields CORS-fronted feeds tend
// to check: language plus an Origin/Referer derived from the target URL.
func BrowserHeaders(connectionType, rawURL string) map[string]string {
	headers := DefaultHeaders(connectionType)
	headers["Accept-Language"] = "en-US,en;q=0.9"
	if origin := originForURL(rawURL); origin != "" {
		headers["Origin"] = origin
		headers["Referer"] = origin + "/"
	}
	return headers
}

func originForURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return ""
	}
	scheme := parsed.Scheme
	host := parsed.Hostname()
	port := parsed.Port()
	if port != "" && !isDefaultPort(scheme, port) {
		return scheme + "://" + host + ":" + port
	}
	return scheme + "://" + host
}

func isDefaultPort(scheme, port string) bool {
	return (scheme == "http" && port == "80") || (scheme == "https" && port == "443")
}
