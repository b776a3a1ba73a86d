package track

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/pion/rtp"
)

func newTestPacket(seq uint16) *rtp.Packet {
	return &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    0,
			SequenceNumber: seq,
			Timestamp:      uint32(seq) * 160,
			SSRC:           0x11223344,
		},
		Payload: make([]byte, 160),
	}
}

// Приёмная сторона без настроенного удаленного адреса должна защёлкнуть
// источник первого принятого пакета и отвечать по нему (symmetric RTP)
func TestUDPTransportLatchesRemoteAddr(t *testing.T) {
	answerer, err := NewUDPTransport(TransportConfig{LocalAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("NewUDPTransport (answerer): %v", err)
	}
	defer answerer.Close()

	offerer, err := NewUDPTransport(TransportConfig{
		LocalAddr:  "127.0.0.1:0",
		RemoteAddr: answerer.LocalAddr().String(),
	})
	if err != nil {
		t.Fatalf("NewUDPTransport (offerer): %v", err)
	}
	defer offerer.Close()

	if answerer.RemoteAddr() != nil {
		t.Fatal("удаленный адрес установлен до первого пакета")
	}

	if err := offerer.Send(newTestPacket(1)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var packet *rtp.Packet
	var src net.Addr
	for {
		packet, src, err = answerer.Receive(ctx)
		if err == nil {
			break
		}
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			continue
		}
		t.Fatalf("Receive: %v", err)
	}
	if packet.SequenceNumber != 1 {
		t.Fatalf("ожидался пакет seq=1, получен seq=%d", packet.SequenceNumber)
	}

	latched := answerer.RemoteAddr()
	if latched == nil {
		t.Fatal("удаленный адрес не защёлкнут после первого пакета")
	}
	if latched.String() != src.String() || latched.String() != offerer.LocalAddr().String() {
		t.Fatalf("защёлкнут %s, ожидался адрес источника %s", latched, offerer.LocalAddr())
	}

	// Ответ должен уйти на источник без явной настройки адреса
	if err := answerer.Send(newTestPacket(2)); err != nil {
		t.Fatalf("Send после защёлкивания: %v", err)
	}
	for {
		packet, _, err = offerer.Receive(ctx)
		if err == nil {
			break
		}
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			continue
		}
		t.Fatalf("Receive ответа: %v", err)
	}
	if packet.SequenceNumber != 2 {
		t.Fatalf("ожидался ответ seq=2, получен seq=%d", packet.SequenceNumber)
	}
}

func TestUDPTransportSendWithoutRemote(t *testing.T) {
	transport, err := NewUDPTransport(TransportConfig{LocalAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("NewUDPTransport: %v", err)
	}
	defer transport.Close()

	if err := transport.Send(newTestPacket(1)); err == nil {
		t.Fatal("ожидалась ошибка отправки без удаленного адреса")
	}
}
