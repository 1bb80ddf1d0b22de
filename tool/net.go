package tool

import (
	"fmt"
	"net"
	"sort"
)

// GetLocalIPv4Set returns the non-loopback IPv4 addresses of this host.
func GetLocalIPv4Set() map[string]struct{} {
	result := make(map[string]struct{})

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return result
	}

	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}

		ip := ipnet.IP
		if ip == nil || ip.IsLoopback() {
			continue
		}

		ipv4 := ip.To4()
		if ipv4 == nil {
			continue
		}

		result[ipv4.String()] = struct{}{}
	}

	return result
}

// LanBaseURL guesses the URL a phone on the same network should use to reach this server.
// Private addresses win; it falls back to localhost.
func LanBaseURL(port int) string {
	ips := make([]string, 0)
	for ip := range GetLocalIPv4Set() {
		ips = append(ips, ip)
	}
	sort.Strings(ips)
	host := "127.0.0.1"
	for _, ip := range ips {
		if parsed := net.ParseIP(ip); parsed != nil && parsed.IsPrivate() {
			host = ip
			break
		}
	}
	if host == "127.0.0.1" && len(ips) > 0 {
		host = ips[0]
	}
	return fmt.Sprintf("http://%s:%d", host, port)
}
