package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNetworks(t *testing.T) {
	t.Parallel()

	nets, err := ParseNetworks([]string{"10.0.0.0/8", " 192.168.1.7 ", "", "2001:db8::/32", "10.1.2.3/8"})
	require.NoError(t, err)
	require.Len(t, nets, 4)

	assert.True(t, nets.Contains("10.200.1.1"))
	assert.True(t, nets.Contains("192.168.1.7"))
	assert.False(t, nets.Contains("192.168.1.8"))
	assert.True(t, nets.Contains("2001:db8::1"))
	assert.True(t, nets.Contains("::ffff:10.0.0.1"))
	assert.False(t, nets.Contains("not-an-ip"))

	_, err = ParseNetworks([]string{"10.0.0.0/33"})
	assert.Error(t, err)
	_, err = ParseNetworks([]string{"bogus"})
	assert.Error(t, err)
}

func TestClientIPExtractor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		trusted []string
		remote  string
		xff     string
		want    string
	}{
		{name: "no trusted proxies ignores xff", remote: "203.0.113.9:5555", xff: "1.1.1.1", want: "203.0.113.9"},
		{name: "untrusted peer ignores xff", trusted: []string{"10.0.0.0/8"}, remote: "203.0.113.9:1", xff: "1.1.1.1", want: "203.0.113.9"},
		{name: "trusted peer uses xff", trusted: []string{"10.0.0.0/8"}, remote: "10.0.0.5:1", xff: "198.51.100.4", want: "198.51.100.4"},
		{
			name: "walks right to left past trusted hops", trusted: []string{"10.0.0.0/8"},
			remote: "10.0.0.5:1", xff: "6.6.6.6, 198.51.100.4, 10.0.0.9", want: "198.51.100.4",
		},
		{name: "all hops trusted falls back", trusted: []string{"10.0.0.0/8"}, remote: "10.0.0.5:1", xff: "10.1.1.1", want: "10.0.0.5"},
		{name: "trusted peer without xff", trusted: []string{"10.0.0.5"}, remote: "10.0.0.5:1", want: "10.0.0.5"},
		{name: "ipv6 peer", remote: "[::1]:8080", want: "::1"},
		{name: "no port", remote: "192.0.2.1", want: "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e, err := NewClientIPExtractor(tt.trusted)
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set(HeaderXForwardedFor, tt.xff)
			}
			assert.Equal(t, tt.want, e.Extract(req))
		})
	}
}

func TestNewClientIPExtractor_Invalid(t *testing.T) {
	t.Parallel()

	_, err := NewClientIPExtractor([]string{"nope"})
	assert.Error(t, err)
}
