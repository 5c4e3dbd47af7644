package auth

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveFingerprintIsDeterministic(t *testing.T) {
	first := DeriveFingerprint("1.2.3.4", "UA-X")
	require.Equal(t, first, DeriveFingerprint("1.2.3.4", "UA-X"))
	require.NotEqual(t, first, DeriveFingerprint("1.2.3.5", "UA-X"))
	require.NotEqual(t, first, DeriveFingerprint("1.2.3.4", "UA-Y"))
	// 32 byte digest, padded base64
	require.Len(t, first, 44)
}

func TestFingerprintsMatch(t *testing.T) {
	fp := DeriveFingerprint("10.0.0.1", "Firefox")
	require.True(t, FingerprintsMatch(fp, fp))
	require.False(t, FingerprintsMatch(fp, DeriveFingerprint("10.0.0.2", "Firefox")))
	require.False(t, FingerprintsMatch("", ""))
}

func TestClientIPPrecedence(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.168.1.10:51234"
	require.Equal(t, "192.168.1.10", ClientIP(req))

	req.Header.Set("X-Real-IP", "172.16.0.4")
	require.Equal(t, "172.16.0.4", ClientIP(req))

	req.Header.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.1")
	require.Equal(t, "203.0.113.7", ClientIP(req))
}

func TestClientIPWithoutPort(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "pipe"
	require.Equal(t, "pipe", ClientIP(req))
}

func TestUserAgentDefaultsToUnknown(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	require.Equal(t, UnknownAgent, UserAgent(req))

	req.Header.Set("User-Agent", "curl/8.0")
	require.Equal(t, "curl/8.0", UserAgent(req))
}

func TestNormalizeIP(t *testing.T) {
	cases := map[string]string{
		"":                "0.0.0.0 (desconocida)",
		"   ":             "0.0.0.0 (desconocida)",
		"0.0.0.0":         "0.0.0.0 (desconocida)",
		"::":              "0.0.0.0 (desconocida)",
		"0:0:0:0:0:0:0:1": "0.0.0.0 (desconocida)",
		"127.0.0.1":       "127.0.0.1 (localhost)",
		"::1":             "::1 (localhost)",
		" 10.0.0.5 ":      "10.0.0.5",
	}
	for in, want := range cases {
		require.Equal(t, want, NormalizeIP(in), "input %q", in)
	}
}
