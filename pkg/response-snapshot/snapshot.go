// Package snapshot converts HTTP responses to and from their stored
// representation, which is the HTTP/1.1 wire form of the response
// (status line, headers, body).
package snapshot

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
)

// ToBytes serializes a response with the given body into its wire form.
// The response is not consumed: the caller keeps the body bytes and can
// still answer the client with them.
func ToBytes(res *http.Response, body []byte) ([]byte, error) {
	stored := *res
	stored.Body = io.NopCloser(bytes.NewReader(body))
	stored.ContentLength = int64(len(body))
	// the snapshot holds the complete body, chunked framing would only
	// obscure the stored bytes
	stored.TransferEncoding = nil
	// responses built by hand may lack a protocol version
	if stored.ProtoMajor == 0 {
		stored.Proto = "HTTP/1.1"
		stored.ProtoMajor, stored.ProtoMinor = 1, 1
	}
	buf := &bytes.Buffer{}
	if err := stored.Write(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FromBytes parses a stored snapshot back into a http.Response.
// The caller is responsible for closing the response body.
func FromBytes(b []byte) (*http.Response, error) {
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(b)), nil)
}
