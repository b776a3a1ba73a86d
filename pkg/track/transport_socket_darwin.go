//go:build darwin

package track

import (
	"net"

	"golang.org/x/sys/unix"
)

// dscpEF маркировка Expedited Forwarding для голосового трафика (RFC 4594)
const dscpEF = 46

// tuneVoiceSocket настраивает UDP сокет под телефонию. На macOS доступна
// только DSCP маркировка, SO_PRIORITY отсутствует. Ошибки опций
// игнорируются: без них сокет остаётся работоспособным.
func tuneVoiceSocket(conn *net.UDPConn) error {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	return rawConn.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_TOS, dscpEF<<2)
		_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_TCLASS, dscpEF<<2)
	})
}
