//go:build linux

package track

import (
	"net"

	"golang.org/x/sys/unix"
)

// dscpEF маркировка Expedited Forwarding для голосового трафика (RFC 4594)
const dscpEF = 46

// tuneVoiceSocket настраивает UDP сокет под телефонию: приоритет сокета
// в очередях ядра и DSCP маркировка исходящих пакетов для QoS.
// Ошибки отдельных опций игнорируются: в контейнерах и при ограниченных
// привилегиях часть опций недоступна, базовая работа от них не зависит.
func tuneVoiceSocket(conn *net.UDPConn) error {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	return rawConn.Control(func(fd uintptr) {
		// Приоритет интерактивного аудио
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_PRIORITY, 6)
		// DSCP занимает старшие 6 бит поля TOS
		_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_TOS, dscpEF<<2)
		_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_TCLASS, dscpEF<<2)
	})
}
