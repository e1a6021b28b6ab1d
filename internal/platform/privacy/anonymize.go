// Package privacy reduces personal data before it reaches logs.
package privacy

import "net/netip"

// AnonymizeIP truncates a verifier address for text logs: IPv4 keeps its /24,
// IPv6 its /48. Stored verification events keep the full address for dispute resolution.
// Returns "unknown" for empty input and "invalid" when the value does not parse.
func AnonymizeIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "invalid"
	}
	addr = addr.Unmap()

	bits := 48
	if addr.Is4() {
		bits = 24
	}
	prefix, err := addr.WithZone("").Prefix(bits)
	if err != nil {
		return "invalid"
	}
	return prefix.Addr().String()
}
