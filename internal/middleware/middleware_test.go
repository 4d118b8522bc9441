package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAccessLog_EchoesOrMintsRequestID(t *testing.T) {
	h := AccessLog(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Fatalf("request id = %q", got)
	}
	if rr.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/x", nil))
	if got := rr.Header().Get(RequestIDHeader); len(got) != 36 {
		t.Fatalf("minted id = %q, want uuid", got)
	}
}

func TestSecurity_SetsHeadersBeforeWrite(t *testing.T) {
	h := Security(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	for _, k := range []string{"Strict-Transport-Security", "X-Frame-Options", "X-Content-Type-Options"} {
		if rr.Header().Get(k) == "" {
			t.Errorf("%s missing", k)
		}
	}
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name, xff, xrip, remote, want string
	}{
		{"forwarded", "garbage, 203.0.113.7, 10.0.0.1", "", "10.0.0.2:1", "203.0.113.7"},
		{"real ip", "", "198.51.100.4", "10.0.0.2:1", "198.51.100.4"},
		{"remote", "", "", "192.0.2.9:5555", "192.0.2.9"},
		{"none", "", "", "pipe", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = c.remote
			if c.xff != "" {
				r.Header.Set("X-Forwarded-For", c.xff)
			}
			if c.xrip != "" {
				r.Header.Set("X-Real-Ip", c.xrip)
			}
			if got := ClientIP(r); got != c.want {
				t.Fatalf("ClientIP = %q, want %q", got, c.want)
			}
		})
	}
}
