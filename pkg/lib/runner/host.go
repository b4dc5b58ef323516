package runner

import "net"

// detectHost returns the address of the interface that routes outwards. Dialing UDP sends no packets;
// it only makes the kernel pick a source address. Falls back to loopback when there is no route.
func detectHost() string {
	conn, err := net.Dial("udp", "192.0.2.1:9")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP.IsUnspecified() {
		return "127.0.0.1"
	}
	return addr.IP.String()
}
