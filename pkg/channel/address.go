package channel

import (
	"net"

	"github.com/aretw0/cftbridge/pkg/domain"
)

// PrimaryAddress returns the first IPv4 address of an interface that is up and not a
// loopback.
func PrimaryAddress() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", domain.NewError(domain.KindNoAddress, "primary address", "list interfaces", err)
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			var ip net.IP
			switch v := a.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip4 := ip.To4(); ip4 != nil && !ip4.IsLoopback() {
				return ip4.String(), nil
			}
		}
	}
	return "", domain.NewError(domain.KindNoAddress, "primary address", "no IPv4 address found", nil)
}
