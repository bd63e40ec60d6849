package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"

	offlinecache "github.com/pancrepal/offline-cache"
	"github.com/pancrepal/offline-cache/cache"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	configFilenameFlag string
	portFlag           int
	originFlag         string
	providerFlag       string
	versionFlag        string
	dbPathFlag         string
	verbosityTraceFlag bool
)

func init() {
	flag.StringVar(&configFilenameFlag, "config", "", "Path to config file")
	flag.StringVar(&originFlag, "origin", "", "Origin to proxy to (overrides config)")
	flag.IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	flag.StringVar(&providerFlag, "provider", "", "Cache provider: sqlite, leveldb or memory (overrides config)")
	flag.StringVar(&versionFlag, "version", "", "Deployed asset version, e.g. v1.0.0 (overrides config)")
	flag.StringVar(&dbPathFlag, "db", "", "Cache store path (overrides config)")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
}

func main() {
	flag.Parse()

	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}
	log.Logger = log.Level(logLevel).Output(zerolog.ConsoleWriter{Out: os.Stdout})

	config := defaultConfig()
	if configFilenameFlag != "" {
		var err error
		config, err = getConfig(configFilenameFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not load config")
		}
	}
	if originFlag != "" {
		config.Origin = originFlag
	}
	if portFlag != 0 {
		config.Port = portFlag
	}
	if providerFlag != "" {
		config.Cache.Provider = providerFlag
	}
	if versionFlag != "" {
		config.Cache.Version = versionFlag
	}
	if dbPathFlag != "" {
		config.Cache.Path = dbPathFlag
	}
	if err := validate(config); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	originURL, err := url.Parse(config.Origin)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not parse origin URL")
	}

	var provider cache.CacheProvider
	switch config.Cache.Provider {
	case "sqlite":
		provider = cache.NewSQLiteCache(config.Cache.Path)
	case "leveldb":
		path := config.Cache.Path
		if path == "" {
			path = "./cache-leveldb"
		}
		provider, err = cache.NewLevelDBCache(path)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not open leveldb store")
		}
	case "memory":
		provider = cache.NewMemCache()
	default:
		log.Fatal().Msgf("Unsupported cache provider: %s", config.Cache.Provider)
	}

	coordinator, err := offlinecache.NewCoordinator(offlinecache.Config{
		Cache:      provider,
		OriginURL:  *originURL,
		CacheName:  config.Cache.Name,
		Version:    config.Cache.Version,
		Assets:     config.Assets,
		OfflineURL: config.Offline,
		Logger:     &log.Logger,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Could not create coordinator")
	}

	// install and take control before accepting traffic;
	// a failed install exits non-zero so the supervisor retries it
	if err := coordinator.Run(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Install failed")
	}

	r := chi.NewRouter()
	r.Post("/-/message", messageHandler(coordinator))
	r.Get("/-/status", statusHandler(coordinator))
	r.Handle("/*", coordinator)

	log.Info().Msgf("Proxying port %v to %s", config.Port, config.Origin)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", config.Port), r); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

// messageHandler accepts out-of-band commands from application code,
// e.g. {"type": "CACHE_URLS", "urls": ["/log", "/avatar"]}.
func messageHandler(c *offlinecache.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := c.HandleMessage(r.Context(), payload); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func statusHandler(c *offlinecache.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"phase":      c.Phase().String(),
			"generation": c.Generation(),
		})
	}
}
