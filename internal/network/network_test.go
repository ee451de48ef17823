package network

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/webagents/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const payload = `<div class="col-lg-12 mx-auto list-group-item">red running shoes</div>`

func encode(t *testing.T, encoding string) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w io.WriteCloser
	switch encoding {
	case "gzip":
		w = gzip.NewWriter(&buf)
	case "br":
		w = brotli.NewWriter(&buf)
	case "deflate":
		w = zlib.NewWriter(&buf)
	case "raw-deflate":
		fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
		require.NoError(t, err)
		w = fw
	default:
		t.Fatalf("unknown encoding %s", encoding)
	}
	_, err := w.Write([]byte(payload))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func newTestClient(t *testing.T, cfg config.NetworkConfig) *http.Client {
	t.Helper()
	client, err := NewClient(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(client.CloseIdleConnections)
	return client
}

func TestClientDecodesResponses(t *testing.T) {
	for _, enc := range []string{"gzip", "br", "deflate", "raw-deflate"} {
		t.Run(enc, func(t *testing.T) {
			body := encode(t, enc)
			header := enc
			if enc == "raw-deflate" {
				header = "deflate"
			}
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Contains(t, r.Header.Get("Accept-Encoding"), "br")
				w.Header().Set("Content-Encoding", header)
				_, _ = w.Write(body)
			}))
			defer srv.Close()

			resp, err := newTestClient(t, config.NetworkConfig{}).Get(srv.URL)
			require.NoError(t, err)
			defer resp.Body.Close()

			got, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, payload, string(got))
			assert.True(t, resp.Uncompressed)
			assert.Empty(t, resp.Header.Get("Content-Encoding"))
		})
	}
}

func TestDecodeRejectsUnknownEncoding(t *testing.T) {
	resp := &http.Response{
		Header: http.Header{"Content-Encoding": []string{"zstd"}},
		Body:   io.NopCloser(bytes.NewReader([]byte("x"))),
	}
	err := Decode(resp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported Content-Encoding layer: zstd")
}

func TestDecodeLayeredEncodings(t *testing.T) {
	var inner bytes.Buffer
	zw := gzip.NewWriter(&inner)
	_, _ = zw.Write([]byte(payload))
	require.NoError(t, zw.Close())

	var outer bytes.Buffer
	bw := brotli.NewWriter(&outer)
	_, _ = bw.Write(inner.Bytes())
	require.NoError(t, bw.Close())

	resp := &http.Response{
		Header: http.Header{"Content-Encoding": []string{"gzip, br"}},
		Body:   io.NopCloser(&outer),
	}
	require.NoError(t, Decode(resp))
	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, string(got))
	require.NoError(t, resp.Body.Close())
}

func TestClientKeepsCookiesAndUserAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "webagents-test", r.Header.Get("User-Agent"))
		if r.URL.Path == "/login" {
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
			return
		}
		c, err := r.Cookie("session")
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(c.Value))
	}))
	defer srv.Close()

	client := newTestClient(t, config.NetworkConfig{UserAgent: "webagents-test"})
	resp, err := client.Get(srv.URL + "/login")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = client.Get(srv.URL + "/cart")
	require.NoError(t, err)
	defer resp.Body.Close()
	got, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "abc", string(got))
}

func TestHostLimiterHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	client := newTestClient(t, config.NetworkConfig{RateLimit: 0.001, Burst: 1})
	resp, err := client.Get(srv.URL)
	require.NoError(t, err, "first request uses the burst token")
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	_, err = client.Do(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit wait")
}
