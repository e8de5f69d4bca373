package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func echoBookingHandler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	if len(body) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write([]byte(`{"request":` + string(body) + `}`))
}

func gzipBody(t *testing.T, s string) io.Reader {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte(s)); err != nil {
		t.Fatalf("write gzip: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return &buf
}

func TestGzipMiddleware(t *testing.T) {
	type want struct {
		statusCode      int
		contentEncoding string
		bodyContains    string
	}

	tests := []struct {
		name         string
		requestBody  string
		compressBody bool
		headers      map[string]string
		want         want
	}{
		{
			name:        "client accepts gzip",
			requestBody: `{"resource_id":"r1","units":2}`,
			headers:     map[string]string{"Accept-Encoding": "gzip, deflate"},
			want: want{
				statusCode:      http.StatusCreated,
				contentEncoding: "gzip",
				bodyContains:    `"units":2`,
			},
		},
		{
			name:        "client does not accept gzip",
			requestBody: `{"resource_id":"r1","units":1}`,
			headers:     map[string]string{},
			want: want{
				statusCode:   http.StatusCreated,
				bodyContains: `"units":1`,
			},
		},
		{
			name:         "compressed request body",
			requestBody:  `{"resource_id":"r2","units":3}`,
			compressBody: true,
			headers: map[string]string{
				"Content-Encoding": "gzip",
				"Accept-Encoding":  "gzip",
			},
			want: want{
				statusCode:      http.StatusCreated,
				contentEncoding: "gzip",
				bodyContains:    `"resource_id":"r2"`,
			},
		},
		{
			name:        "no content is not compressed",
			requestBody: "",
			headers:     map[string]string{"Accept-Encoding": "gzip"},
			want: want{
				statusCode: http.StatusNoContent,
			},
		},
		{
			name:        "broken gzip body",
			requestBody: "not gzip",
			headers:     map[string]string{"Content-Encoding": "gzip"},
			want: want{
				statusCode:   http.StatusBadRequest,
				bodyContains: "invalid gzip body",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var requestBody io.Reader = strings.NewReader(tt.requestBody)
			if tt.compressBody {
				requestBody = gzipBody(t, tt.requestBody)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/bookings", requestBody)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			w := httptest.NewRecorder()
			GzipMiddleware(http.HandlerFunc(echoBookingHandler)).ServeHTTP(w, req)

			res := w.Result()
			defer res.Body.Close()

			if res.StatusCode != tt.want.statusCode {
				t.Fatalf("status: got %d want %d", res.StatusCode, tt.want.statusCode)
			}

			if ce := res.Header.Get("Content-Encoding"); ce != tt.want.contentEncoding {
				t.Fatalf("content-encoding: got %q want %q", ce, tt.want.contentEncoding)
			}

			var reader io.Reader = res.Body
			if res.Header.Get("Content-Encoding") == "gzip" {
				gr, err := gzip.NewReader(res.Body)
				if err != nil {
					t.Fatalf("new gzip reader: %v", err)
				}
				defer gr.Close()
				reader = gr
			}

			body, err := io.ReadAll(reader)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}

			if !strings.Contains(string(body), tt.want.bodyContains) {
				t.Fatalf("body %q does not contain %q", string(body), tt.want.bodyContains)
			}
		})
	}
}
