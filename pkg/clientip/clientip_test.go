package clientip

import (
	"net/http/httptest"
	"testing"
)

func TestFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{
			name:    "no headers falls back to loopback",
			headers: map[string]string{},
			want:    "127.0.0.1",
		},
		{
			name: "platform header wins",
			headers: map[string]string{
				"CF-Connecting-IP": "203.0.113.7",
				"X-Forwarded-For":  "198.51.100.1",
				"X-Real-IP":        "192.0.2.1",
			},
			want: "203.0.113.7",
		},
		{
			name: "forwarded-for first value",
			headers: map[string]string{
				"X-Forwarded-For": "198.51.100.1, 10.0.0.2, 10.0.0.3",
				"X-Real-IP":       "192.0.2.1",
			},
			want: "198.51.100.1",
		},
		{
			name: "forwarded-for single value",
			headers: map[string]string{
				"X-Forwarded-For": "198.51.100.1",
			},
			want: "198.51.100.1",
		},
		{
			name: "forwarded-for with whitespace",
			headers: map[string]string{
				"X-Forwarded-For": "  198.51.100.1  ,10.0.0.2",
			},
			want: "198.51.100.1",
		},
		{
			name: "real-ip fallback",
			headers: map[string]string{
				"X-Real-IP": "192.0.2.1",
			},
			want: "192.0.2.1",
		},
		{
			name: "blank platform header skipped",
			headers: map[string]string{
				"CF-Connecting-IP": "   ",
				"X-Real-IP":        "192.0.2.1",
			},
			want: "192.0.2.1",
		},
		{
			name: "forwarded-for with empty first element falls through",
			headers: map[string]string{
				"X-Forwarded-For": " ,10.0.0.2",
				"X-Real-IP":       "192.0.2.1",
			},
			want: "192.0.2.1",
		},
		{
			name: "ipv6 address",
			headers: map[string]string{
				"X-Forwarded-For": "2001:db8::1, 10.0.0.2",
			},
			want: "2001:db8::1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/auth/login", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			got := FromRequest(req)
			if got != tt.want {
				t.Errorf("FromRequest() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIdentifier(t *testing.T) {
	if got := Identifier("203.0.113.7"); got != "ip:203.0.113.7" {
		t.Errorf("Identifier() = %q, want %q", got, "ip:203.0.113.7")
	}
}
