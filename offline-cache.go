package offlinecache

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"

	"github.com/pancrepal/offline-cache/cache"
	cachekey "github.com/pancrepal/offline-cache/pkg/cache-key"
	snapshot "github.com/pancrepal/offline-cache/pkg/response-snapshot"

	"github.com/rs/zerolog"
)

type Config struct {
	// Storage for cached response snapshots.
	Cache cache.CacheProvider
	// URL of the origin server.
	// Origins with paths are not supported.
	OriginURL url.URL
	// Name prefix shared by all cache generations, e.g. "pancrepal".
	CacheName string
	// Version of the deployed assets, e.g. "v1.0.0".
	// Together with CacheName it identifies the current generation.
	Version string
	// Assets is the ordered list of URLs primed on install.
	Assets []string
	// OfflineURL is the fallback document served to navigations that fail
	// while offline. It must be a member of Assets so it is guaranteed
	// present after install.
	OfflineURL string
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
	// Client used for origin fetches. http.DefaultClient is used if nil.
	Client *http.Client
}

// Coordinator owns one versioned cache generation and mediates all traffic
// between clients and the origin. It is an http.Handler: every request from
// a controlled client goes through its fetch routing.
type Coordinator struct {
	cache       cache.CacheProvider
	keyer       cachekey.Keyer
	originURL   url.URL
	generation  string
	assets      []string
	offlineURL  string
	offlineKey  string
	client      *http.Client
	log         zerolog.Logger
	passthrough httputil.ReverseProxy
	clients     *ClientRegistry

	mu    sync.Mutex
	phase Phase
}

// NewCoordinator initializes the coordinator for one deployed version.
// The returned instance has not installed anything yet; call Run (or
// Install and Activate separately) before serving traffic.
func NewCoordinator(config Config) (*Coordinator, error) {
	if config.Cache == nil {
		return nil, fmt.Errorf("cache provider is required")
	}
	if config.OriginURL.Host == "" {
		return nil, fmt.Errorf("origin URL is required")
	}
	if config.CacheName == "" || config.Version == "" {
		return nil, fmt.Errorf("cache name and version are required")
	}

	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}

	generation := cachekey.GenerationName(config.CacheName, config.Version)

	// create a child logger and add defaults
	logger = logger.With().
		Str("generation", generation).
		Logger()

	client := config.Client
	if client == nil {
		client = http.DefaultClient
	}

	c := &Coordinator{
		cache:      config.Cache,
		keyer:      cachekey.NewKeyer(),
		originURL:  config.OriginURL,
		generation: generation,
		assets:     config.Assets,
		offlineURL: config.OfflineURL,
		client:     client,
		log:        logger,
		clients:    NewClientRegistry(),
	}

	if config.OfflineURL != "" {
		if !contains(config.Assets, config.OfflineURL) {
			return nil, fmt.Errorf("offline document %s must be part of the asset set", config.OfflineURL)
		}
		offline, err := url.Parse(config.OfflineURL)
		if err != nil {
			return nil, fmt.Errorf("offline document URL: %w", err)
		}
		c.offlineKey = c.keyer.KeyForURL(http.MethodGet, offline)
	}

	c.passthrough = httputil.ReverseProxy{
		Director: createDirector(config.OriginURL.Scheme, config.OriginURL.Host),
	}

	return c, nil
}

// Generation returns the name of the current cache generation.
func (c *Coordinator) Generation() string {
	return c.generation
}

// Clients returns the registry of controlled clients.
func (c *Coordinator) Clients() *ClientRegistry {
	return c.clients
}

// ServeHTTP implements the http.Handler interface.
// Requests outside the cache layer pass straight through to the origin;
// everything else is routed network-first with cache fallback.
func (c *Coordinator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !Cacheable(r) {
		c.passthrough.ServeHTTP(w, r)
		return
	}

	res, err := c.fetch(r)
	if err != nil {
		c.serveOffline(w, r, err)
		return
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		c.log.Error().Err(err).Msg("Could not read origin response")
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	if isSuccess(res.StatusCode) {
		// duplicate the response before answering the client so the
		// cache write cannot interfere with the user-visible copy
		if stored, err := snapshot.ToBytes(res, body); err == nil {
			go c.store(c.keyer.Key(r), stored)
		} else {
			c.log.Warn().Err(err).Msg("Could not serialize response")
		}
	}

	copyHeader(w.Header(), res.Header)
	w.WriteHeader(res.StatusCode)
	if _, err := w.Write(body); err != nil {
		c.log.Error().Err(err).Msg("Could not write response body to client")
	}
}

// fetch forwards the request to the origin over the network.
func (c *Coordinator) fetch(r *http.Request) (*http.Response, error) {
	req := r.Clone(r.Context())
	req.URL.Scheme = c.originURL.Scheme
	req.URL.Host = c.originURL.Host
	req.RequestURI = ""
	req.Host = ""
	return c.client.Do(req)
}

// serveOffline recovers a failed origin fetch from the cache: first the
// request's own snapshot, then the offline document for navigations.
// If neither exists the original fetch error is propagated to the caller.
func (c *Coordinator) serveOffline(w http.ResponseWriter, r *http.Request, fetchErr error) {
	key := c.keyer.Key(r)
	log := c.log.With().Str("key", key).Logger()
	log.Debug().Err(fetchErr).Msg("Origin fetch failed, falling back to cache")

	if b, ok, err := c.cache.Get(c.generation, key); err == nil && ok {
		c.sendSnapshot(w, b)
		return
	}

	if isNavigation(r) && c.offlineKey != "" {
		if b, ok, err := c.cache.Get(c.generation, c.offlineKey); err == nil && ok {
			c.sendSnapshot(w, b)
			return
		}
		log.Error().Msg("Offline document missing from cache")
	}

	http.Error(w, fetchErr.Error(), http.StatusBadGateway)
}

// sendSnapshot writes a stored response snapshot to the client.
func (c *Coordinator) sendSnapshot(w http.ResponseWriter, b []byte) {
	res, err := snapshot.FromBytes(b)
	if err != nil {
		c.log.Error().Err(err).Msg("Could not parse stored snapshot")
		http.Error(w, "corrupt cache entry", http.StatusInternalServerError)
		return
	}
	defer res.Body.Close()
	copyHeader(w.Header(), res.Header)
	w.WriteHeader(res.StatusCode)
	if _, err := io.Copy(w, res.Body); err != nil {
		c.log.Error().Err(err).Msg("Could not write snapshot body to client")
	}
}

// store persists a serialized snapshot into the current generation.
// Failures are logged and swallowed, the client response is already
// decoupled from the write by the time this runs.
func (c *Coordinator) store(key string, b []byte) {
	if err := c.cache.Put(c.generation, key, b); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Could not write cache entry")
	}
}

// Cacheable reports whether a request may be served from or written to the
// cache store. Only GET requests over HTTP(S) qualify; everything else
// bypasses the cache layer entirely.
func Cacheable(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	// origin-form requests carry no scheme and are HTTP by construction
	switch r.URL.Scheme {
	case "", "http", "https":
		return true
	}
	return false
}

// isNavigation reports whether the request is a top-level page navigation
// as opposed to a sub-resource fetch.
func isNavigation(r *http.Request) bool {
	return r.Header.Get("Sec-Fetch-Mode") == "navigate"
}

func isSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

func createDirector(scheme, host string) func(req *http.Request) {
	return func(req *http.Request) {
		req.URL.Scheme = scheme
		req.URL.Host = host
	}
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
