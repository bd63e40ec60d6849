package snapshot

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	res := &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/html"}},
	}
	b, err := ToBytes(res, []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}

	parsed, err := FromBytes(b)
	if err != nil {
		t.Fatal(err)
	}
	defer parsed.Body.Close()

	if parsed.StatusCode != http.StatusOK {
		t.Fatalf("Status is %d", parsed.StatusCode)
	}
	if ct := parsed.Header.Get("Content-Type"); ct != "text/html" {
		t.Fatalf("Content-Type is %s", ct)
	}
	if body, _ := io.ReadAll(parsed.Body); string(body) != "hello" {
		t.Fatalf("Body is %s", body)
	}
}

func TestSerializesClientResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Custom", "yes")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("created"))
	}))
	defer server.Close()

	res, err := http.Get(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	if err != nil {
		t.Fatal(err)
	}

	b, err := ToBytes(res, body)
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := FromBytes(b)
	if err != nil {
		t.Fatal(err)
	}
	defer parsed.Body.Close()

	if parsed.StatusCode != http.StatusCreated {
		t.Fatalf("Status is %d", parsed.StatusCode)
	}
	if h := parsed.Header.Get("X-Custom"); h != "yes" {
		t.Fatalf("X-Custom is %s", h)
	}
	if stored, _ := io.ReadAll(parsed.Body); string(stored) != "created" {
		t.Fatalf("Body is %s", stored)
	}
}
