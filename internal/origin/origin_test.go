package origin

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		ip   string
		want Origin
	}{
		{"ipv4 loopback", "127.0.0.1", Localhost},
		{"ipv6 loopback", "::1", Localhost},
		{"ipv4-mapped loopback", "::ffff:127.0.0.1", Localhost},
		{"class A private", "10.1.2.3", Lan},
		{"class B private low", "172.16.0.1", Lan},
		{"class B private high", "172.31.255.255", Lan},
		{"class B outside range", "172.32.0.1", External},
		{"class C private", "192.168.1.100", Lan},
		{"ipv6 ULA", "fc00::1", Lan},
		{"ipv6 ULA upper half", "fd12::1", Lan},
		{"ipv6 link-local", "fe80::1", Lan},
		{"ipv4-mapped private", "::ffff:192.168.1.1", Lan},
		{"public v4", "8.8.8.8", External},
		{"public v6", "2001:4860:4860::8888", External},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(net.ParseIP(tt.ip)))
		})
	}
}

func TestClassifyAddr_StripsPort(t *testing.T) {
	assert.Equal(t, Lan, ClassifyAddr("192.168.1.1:54321"))
	assert.Equal(t, Localhost, ClassifyAddr("127.0.0.1:8080"))
	assert.Equal(t, Lan, ClassifyAddr("[fc00::1]:443"))
}

func TestClassify_HostHeaderNeverConsulted(t *testing.T) {
	// Classify's signature takes only an IP: there is no way to pass a
	// host header in, which is the point.
	assert.Equal(t, External, Classify(net.ParseIP("8.8.8.8")))
}

func TestOrigin_String(t *testing.T) {
	assert.Equal(t, "localhost", Localhost.String())
	assert.Equal(t, "lan", Lan.String())
	assert.Equal(t, "external", External.String())
}
