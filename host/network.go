// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host // import "blitznote.com/src/sendfile/host"

import (
	"net"
	"net/url"
	"strconv"
)

// LocalIP returns the LAN-facing IPv4 address of this machine, or nil if there is none.
//
// No packet is sent: "connecting" UDP merely consults the routing table.
func LocalIP() net.IP {
	if conn, err := net.Dial("udp4", "192.0.2.1:9"); err == nil {
		defer conn.Close()
		if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok && !addr.IP.IsLoopback() {
			return addr.IP
		}
	}

	addrs, _ := net.InterfaceAddrs()
	var fallback net.IP
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() || ipnet.IP.IsLinkLocalUnicast() {
			continue
		}
		ip4 := ipnet.IP.To4()
		if ip4 == nil {
			continue
		}
		if ip4.IsPrivate() {
			return ip4
		}
		if fallback == nil {
			fallback = ip4
		}
	}
	return fallback
}

// advertisedHost is the address other devices should use to reach 'listenHost'.
func advertisedHost(listenHost string) string {
	ip := net.ParseIP(listenHost)
	if listenHost != "" && (ip == nil || !ip.IsUnspecified()) {
		return listenHost
	}
	if lan := LocalIP(); lan != nil {
		return lan.String()
	}
	return "127.0.0.1"
}

// baseURL of the receiver at 'host' and 'port'.
func baseURL(host string, port uint16) string {
	u := url.URL{Scheme: "http", Host: net.JoinHostPort(host, strconv.Itoa(int(port))), Path: "/"}
	return u.String()
}
