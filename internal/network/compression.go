// File: internal/network/compression.go
package network

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

var (
	gzipPool   = sync.Pool{New: func() interface{} { return new(gzip.Reader) }}
	brotliPool = sync.Pool{New: func() interface{} { return brotli.NewReader(nil) }}
	emptyBody  = strings.NewReader("")
)

// decoder wraps src for one Content-Encoding layer. release, when non-nil,
// returns pooled state once the body is closed.
type decoder func(src io.Reader) (rc io.ReadCloser, release func(), err error)

var decoders = map[string]decoder{
	"gzip": func(src io.Reader) (io.ReadCloser, func(), error) {
		zr := gzipPool.Get().(*gzip.Reader)
		if err := zr.Reset(src); err != nil {
			gzipPool.Put(zr)
			return nil, nil, err
		}
		return zr, func() { _ = zr.Reset(emptyBody); gzipPool.Put(zr) }, nil
	},
	"br": func(src io.Reader) (io.ReadCloser, func(), error) {
		br := brotliPool.Get().(*brotli.Reader)
		if err := br.Reset(src); err != nil {
			brotliPool.Put(br)
			return nil, nil, err
		}
		return io.NopCloser(br), func() { _ = br.Reset(emptyBody); brotliPool.Put(br) }, nil
	},
	"deflate": func(src io.Reader) (io.ReadCloser, func(), error) {
		return inflate(src), nil, nil
	},
}

// compressionTransport negotiates br/gzip/deflate and hands callers a decoded body.
type compressionTransport struct {
	next http.RoundTripper
}

func (c *compressionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("Accept-Encoding", "br, gzip, deflate")
	}

	resp, err := c.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if err := Decode(resp); err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to initialize response decompression: %w", err)
	}
	return resp, nil
}

type decodedBody struct {
	io.ReadCloser
	raw     io.ReadCloser
	release func()
}

func (b *decodedBody) Close() error {
	err := errors.Join(b.ReadCloser.Close(), b.raw.Close())
	if b.release != nil {
		b.release()
		b.release = nil
	}
	return err
}

// Decode replaces resp.Body with a reader that undoes every Content-Encoding
// layer, last applied first. Headers are updated to describe the decoded body.
func Decode(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}
	layers := resp.Header.Values("Content-Encoding")
	if len(layers) == 0 {
		return nil
	}

	for i := len(layers) - 1; i >= 0; i-- {
		for _, enc := range splitEncodings(layers[i]) {
			if enc == "identity" {
				continue
			}
			dec, ok := decoders[enc]
			if !ok {
				return fmt.Errorf("unsupported Content-Encoding layer: %s", enc)
			}
			rc, release, err := dec(resp.Body)
			if err != nil {
				return fmt.Errorf("%s initialization error: %w", enc, err)
			}
			resp.Body = &decodedBody{ReadCloser: rc, raw: resp.Body, release: release}
		}
	}

	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

// splitEncodings handles "gzip, br" in a single header value, returned in
// decode order.
func splitEncodings(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for i := len(parts) - 1; i >= 0; i-- {
		if p := strings.ToLower(strings.TrimSpace(parts[i])); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// inflate reads zlib-wrapped deflate, falling back to raw deflate when the
// zlib header is missing. The sniffed bytes are replayed for the fallback.
func inflate(src io.Reader) io.ReadCloser {
	var head bytes.Buffer
	zr, err := zlib.NewReader(io.TeeReader(src, &head))
	if err == nil {
		return zr
	}
	return flate.NewReader(io.MultiReader(bytes.NewReader(head.Bytes()), src))
}
