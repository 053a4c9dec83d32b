// Package origin classifies an inbound request's socket peer address into
// Localhost, Lan, or External. Origin is the first-class security
// boundary the rest of the auth entry points gate on, so it is computed
// purely from the TCP peer address and never from a header a client can
// forge.
package origin

import "net"

// Origin is the classification of a request's peer address.
type Origin int

const (
	// External is any peer address that is neither loopback nor private.
	External Origin = iota
	// Lan is a private-range or link-local peer address.
	Lan
	// Localhost is a loopback peer address.
	Localhost
)

func (o Origin) String() string {
	switch o {
	case Localhost:
		return "localhost"
	case Lan:
		return "lan"
	default:
		return "external"
	}
}

// Classify derives an Origin from a socket peer address. The host header
// is deliberately not a parameter: origin decisions must depend only on
// the TCP peer, never on attacker-controlled headers.
func Classify(ip net.IP) Origin {
	if ip == nil {
		return External
	}
	if v4 := ip.To4(); v4 != nil {
		return classifyV4(v4)
	}
	return classifyV6(ip)
}

// ClassifyAddr classifies the IP embedded in a "host:port" or bare IP
// string, as produced by http.Request.RemoteAddr or net.Conn.RemoteAddr.
func ClassifyAddr(addr string) Origin {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	ip := net.ParseIP(host)
	return Classify(ip)
}

func classifyV4(ip net.IP) Origin {
	if ip.IsLoopback() {
		return Localhost
	}
	switch {
	case ip[0] == 10:
		return Lan
	case ip[0] == 172 && ip[1] >= 16 && ip[1] <= 31:
		return Lan
	case ip[0] == 192 && ip[1] == 168:
		return Lan
	default:
		return External
	}
}

func classifyV6(ip net.IP) Origin {
	if ip.IsLoopback() {
		return Localhost
	}
	if v4 := ip.To4(); v4 != nil {
		return classifyV4(v4)
	}
	// fc00::/7 (unique local) and fe80::/10 (link-local).
	if ip[0]&0xfe == 0xfc {
		return Lan
	}
	if ip[0] == 0xfe && ip[1]&0xc0 == 0x80 {
		return Lan
	}
	return External
}
