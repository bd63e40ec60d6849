package offlinecache

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/pancrepal/offline-cache/cache"
	snapshot "github.com/pancrepal/offline-cache/pkg/response-snapshot"

	"github.com/go-chi/chi/v5"
)

const testGeneration = "pancrepal-v1.0.0"

func testOrigin() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("app shell"))
	})
	mux.HandleFunc("/static/css/style.css", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		w.Write([]byte("body {}"))
	})
	mux.HandleFunc("/static/offline.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("You are offline"))
	})
	return mux
}

func newTestCoordinator(t *testing.T, origin string, store cache.CacheProvider) *Coordinator {
	t.Helper()
	originURL, err := url.Parse(origin)
	if err != nil {
		t.Fatal(err)
	}
	c, err := NewCoordinator(Config{
		Cache:      store,
		OriginURL:  *originURL,
		CacheName:  "pancrepal",
		Version:    "v1.0.0",
		Assets:     []string{"/", "/static/css/style.css", "/static/offline.html"},
		OfflineURL: "/static/offline.html",
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func countEntries(store cache.CacheProvider, generation string) int {
	count := 0
	store.Keys(generation, func(string) { count++ })
	return count
}

// waitForEntry polls for a cache entry, since response snapshots are
// written in a fire-and-forget goroutine.
func waitForEntry(t *testing.T, store cache.CacheProvider, generation, key string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if store.Has(generation, key) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("No cache entry for %s", key)
}

func TestPassThroughNonGet(t *testing.T) {
	store := cache.NewMemCache()
	mux := testOrigin()
	var sawPost bool
	mux.HandleFunc("/log", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" {
			sawPost = true
		}
		w.Write([]byte("logged"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	c := newTestCoordinator(t, server.URL, store)

	rr := httptest.NewRecorder()
	c.ServeHTTP(rr, httptest.NewRequest("POST", "/log", strings.NewReader("carbs=42")))

	if rr.Code != http.StatusOK {
		t.Fatalf("Status code is %d", rr.Code)
	}
	if !sawPost {
		t.Fatal("Origin never saw the POST")
	}
	if n := countEntries(store, testGeneration); n != 0 {
		t.Fatalf("Cache has %d entries after pass-through", n)
	}
}

func TestPassThroughNonHTTPScheme(t *testing.T) {
	store := cache.NewMemCache()
	server := httptest.NewServer(testOrigin())
	defer server.Close()
	c := newTestCoordinator(t, server.URL, store)

	rr := httptest.NewRecorder()
	c.ServeHTTP(rr, httptest.NewRequest("GET", "chrome-extension://internal/page", nil))

	if n := countEntries(store, testGeneration); n != 0 {
		t.Fatalf("Cache has %d entries after pass-through", n)
	}
}

func TestNetworkFirstStoresSuccess(t *testing.T) {
	store := cache.NewMemCache()
	server := httptest.NewServer(testOrigin())
	defer server.Close()
	c := newTestCoordinator(t, server.URL, store)

	rr := httptest.NewRecorder()
	c.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	if body := rr.Body.String(); body != "app shell" {
		t.Fatalf("Body is %s", body)
	}
	waitForEntry(t, store, testGeneration, "GET:/")

	b, ok, err := store.Get(testGeneration, "GET:/")
	if err != nil || !ok {
		t.Fatalf("Cache lookup: ok=%v err=%v", ok, err)
	}
	res, err := snapshot.FromBytes(b)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("Stored status is %d", res.StatusCode)
	}
	if body, _ := io.ReadAll(res.Body); string(body) != "app shell" {
		t.Fatalf("Stored body is %s", body)
	}
}

func TestNonSuccessNotStored(t *testing.T) {
	store := cache.NewMemCache()
	mux := testOrigin()
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	c := newTestCoordinator(t, server.URL, store)

	rr := httptest.NewRecorder()
	c.ServeHTTP(rr, httptest.NewRequest("GET", "/gone", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("Status code is %d", rr.Code)
	}
	time.Sleep(100 * time.Millisecond)
	if n := countEntries(store, testGeneration); n != 0 {
		t.Fatalf("Cache has %d entries for a failed response", n)
	}
}

func TestOfflineServesCachedSnapshot(t *testing.T) {
	store := cache.NewMemCache()
	mux := testOrigin()
	mux.HandleFunc("/api/entries", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"carbs":42}]`))
	})
	server := httptest.NewServer(mux)
	c := newTestCoordinator(t, server.URL, store)

	c.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/entries", nil))
	waitForEntry(t, store, testGeneration, "GET:/api/entries")

	server.Close()

	rr := httptest.NewRecorder()
	c.ServeHTTP(rr, httptest.NewRequest("GET", "/api/entries", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("Status code is %d", rr.Code)
	}
	if body := rr.Body.String(); body != `[{"carbs":42}]` {
		t.Fatalf("Body is %s", body)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type is %s", ct)
	}
}

func TestOfflineNavigationFallback(t *testing.T) {
	store := cache.NewMemCache()
	server := httptest.NewServer(testOrigin())
	c := newTestCoordinator(t, server.URL, store)

	if err := c.Install(context.Background()); err != nil {
		t.Fatal(err)
	}
	server.Close()

	req := httptest.NewRequest("GET", "/never-visited", nil)
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	rr := httptest.NewRecorder()
	c.ServeHTTP(rr, req)

	if body := rr.Body.String(); body != "You are offline" {
		t.Fatalf("Body is %s", body)
	}
}

func TestOfflineMissPropagatesError(t *testing.T) {
	store := cache.NewMemCache()
	server := httptest.NewServer(testOrigin())
	c := newTestCoordinator(t, server.URL, store)

	if err := c.Install(context.Background()); err != nil {
		t.Fatal(err)
	}
	server.Close()

	// a sub-resource fetch gets neither the offline document nor a
	// synthesized response
	rr := httptest.NewRecorder()
	c.ServeHTTP(rr, httptest.NewRequest("GET", "/api/progress", nil))

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("Status code is %d", rr.Code)
	}
}

func TestMountedUnderChiRouter(t *testing.T) {
	store := cache.NewMemCache()
	server := httptest.NewServer(testOrigin())
	defer server.Close()
	c := newTestCoordinator(t, server.URL, store)

	r := chi.NewRouter()
	r.Handle("/*", c)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("Status code is %d", rr.Code)
	}
	if body := rr.Body.String(); body != "app shell" {
		t.Fatalf("Body is %s", body)
	}
}
