package parser

import (
	"net/url"
	"strings"
)

var skippedSchemes = map[string]struct{}{
	"mailto":     {},
	"javascript": {},
	"tel":        {},
	"data":       {},
}

// ResolveLink turns an href found on base into an absolute http(s) URL without
// fragment. It returns "" for links that must not be followed.
func ResolveLink(base *url.URL, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return ""
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if ref.Scheme != "" {
		scheme := strings.ToLower(ref.Scheme)
		if _, skip := skippedSchemes[scheme]; skip {
			return ""
		}
		if scheme != "http" && scheme != "https" {
			return ""
		}
	}

	abs := base.ResolveReference(ref)
	abs.Fragment = ""
	abs.RawFragment = ""
	if abs.Path == "" {
		abs.Path = "/"
	}
	return abs.String()
}

// Origin is the scheme, host and port a crawl is confined to.
type Origin struct {
	Scheme string
	Host   string
	Port   string
}

// ParseOrigin returns the origin of rawURL. Default ports are made explicit
// so that https://a and https://a:443 compare equal.
func ParseOrigin(rawURL string) (Origin, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Origin{}, err
	}
	return originOf(u), nil
}

func originOf(u *url.URL) Origin {
	scheme := strings.ToLower(u.Scheme)
	port := u.Port()
	if port == "" {
		switch scheme {
		case "http":
			port = "80"
		case "https":
			port = "443"
		}
	}
	return Origin{Scheme: scheme, Host: strings.ToLower(u.Hostname()), Port: port}
}

// Contains reports whether rawURL lives under o.
func (o Origin) Contains(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	return originOf(u) == o
}

func (o Origin) String() string {
	return o.Scheme + "://" + o.Host + ":" + o.Port
}
