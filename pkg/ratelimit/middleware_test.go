package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lodging/internal/shared/config"

	"github.com/gin-gonic/gin"
)

func TestGetRateLimitType(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   RateLimitType
	}{
		{http.MethodGet, "/health", RateLimitTypeHealth},
		{http.MethodPost, "/api/v1/payments/callback", RateLimitTypeCallback},
		{http.MethodPost, "/api/v1/reservations/:id/payments", RateLimitTypePayment},
		{http.MethodPost, "/api/v1/rooms/:roomId/reservations", RateLimitTypePayment},
		{http.MethodGet, "/api/v1/rooms/:roomId/availability", RateLimitTypePublic},
		{http.MethodGet, "/api/v1/rooms/:roomId/calendar.ics", RateLimitTypePublic},
		{http.MethodPost, "/api/v1/admin/calendar-sources/sync", RateLimitTypeAdmin},
		{http.MethodPost, "/api/v1/auth/login", RateLimitTypeAuth},
		{http.MethodGet, "/api/v1/payments/sessions/:token", RateLimitTypeDefault},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			if got := getRateLimitType(tt.method, tt.path); got != tt.want {
				t.Errorf("getRateLimitType() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestIsAllowedWhenDisabledOrWhitelisted(t *testing.T) {
	cfg := &config.RateLimitConfig{
		Enabled:         false,
		WindowDuration:  time.Minute,
		DefaultRequests: 5,
		WhitelistedIPs:  []string{"10.0.0.1"},
	}
	// No Redis client: both paths must short-circuit before touching it.
	rl := NewRateLimiter(nil, cfg)

	res, err := rl.IsAllowed(context.Background(), "1.2.3.4", RateLimitTypeDefault)
	if err != nil || !res.Allowed || res.Limit != 5 {
		t.Fatalf("disabled limiter: res=%+v err=%v", res, err)
	}

	cfg.Enabled = true
	res, err = rl.IsAllowed(context.Background(), "10.0.0.1", RateLimitTypeDefault)
	if err != nil || !res.Allowed {
		t.Fatalf("whitelisted ip: res=%+v err=%v", res, err)
	}
}

func TestGetClientIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = "192.0.2.10:5555"

	if ip := getClientIP(c); ip != "192.0.2.10" {
		t.Errorf("remote addr ip = %s", ip)
	}
	c.Request.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	if ip := getClientIP(c); ip != "203.0.113.5" {
		t.Errorf("forwarded ip = %s", ip)
	}
}

func TestWhitelistRanges(t *testing.T) {
	rl := NewRateLimiter(nil, &config.RateLimitConfig{
		Enabled:        true,
		WindowDuration: 90 * time.Second,
		WhitelistedIPs: []string{"203.0.113.0/24", "2001:db8::1", "not-an-ip", " "},
	})
	tests := []struct {
		ip   string
		want bool
	}{
		{"203.0.113.42", true},
		{"203.0.114.1", false},
		{"2001:db8::1", true},
		{"::ffff:203.0.113.7", true},
		{"garbage", false},
	}
	for _, tt := range tests {
		if got := rl.isWhitelisted(tt.ip); got != tt.want {
			t.Errorf("isWhitelisted(%q) = %v, want %v", tt.ip, got, tt.want)
		}
	}
	if len(rl.whitelist) != 2 {
		t.Errorf("parsed %d whitelist entries, want 2", len(rl.whitelist))
	}
	if rl.RetryAfter() != 90 {
		t.Errorf("RetryAfter() = %d, want 90", rl.RetryAfter())
	}
}
