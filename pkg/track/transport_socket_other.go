//go:build !linux && !darwin

package track

import "net"

// tuneVoiceSocket на остальных платформах не применяет никаких опций:
// приоритезация и DSCP маркировка реализованы для Linux и macOS.
func tuneVoiceSocket(conn *net.UDPConn) error {
	return nil
}
