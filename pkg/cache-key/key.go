package cachekey

import (
	"net/http"
	"net/url"
)

const (
	nameSeparator   = "-"
	methodSeparator = ":"
)

// GenerationName composes a versioned cache store name,
// e.g. "pancrepal-v1.0.0".
func GenerationName(name, version string) string {
	return name + nameSeparator + version
}

// Keyer derives cache keys from request identity, i.e. the method and the
// request URI. The generation name is not part of the key: the store keeps
// generations apart itself.
type Keyer struct{}

func NewKeyer() Keyer {
	return Keyer{}
}

// Key returns the cache key for an incoming request.
func (k Keyer) Key(r *http.Request) string {
	return r.Method + methodSeparator + r.URL.RequestURI()
}

// KeyForURL returns the cache key a request for the given URL would
// produce. Use it when there is no http.Request, e.g. while priming.
func (k Keyer) KeyForURL(method string, u *url.URL) string {
	return method + methodSeparator + u.RequestURI()
}
