package track

import (
	"strings"
	"testing"
	"time"

	"github.com/pion/sdp/v3"

	"github.com/arzzra/media_engine/pkg/media"
)

func buildOffer(t *testing.T, formats []string, attributes []string) []byte {
	t.Helper()
	var sb strings.Builder
	sb.WriteString("v=0\r\n")
	sb.WriteString("o=- 123456 123456 IN IP4 192.168.1.100\r\n")
	sb.WriteString("s=test\r\n")
	sb.WriteString("c=IN IP4 192.168.1.100\r\n")
	sb.WriteString("t=0 0\r\n")
	sb.WriteString("m=audio 49170 RTP/AVP " + strings.Join(formats, " ") + "\r\n")
	for _, attr := range attributes {
		sb.WriteString("a=" + attr + "\r\n")
	}
	return []byte(sb.String())
}

func TestNegotiateOffer(t *testing.T) {
	t.Run("предпочитаемый кодек выбирается если предложен", func(t *testing.T) {
		offer := buildOffer(t, []string{"0", "8"}, []string{
			"rtpmap:0 PCMU/8000",
			"rtpmap:8 PCMA/8000",
		})

		result, err := negotiateOffer("t1", offer, media.CodecPCMA)
		if err != nil {
			t.Fatalf("согласование не удалось: %v", err)
		}
		if result.codec != media.CodecPCMA {
			t.Errorf("ожидался PCMA, выбран %s", result.codec.Name())
		}
		if result.payloadType != 8 {
			t.Errorf("ожидался payload type 8, получен %d", result.payloadType)
		}
		if result.remoteAddr != "192.168.1.100:49170" {
			t.Errorf("неверный удалённый адрес: %s", result.remoteAddr)
		}
	})

	t.Run("первый поддерживаемый если предпочитаемый не предложен", func(t *testing.T) {
		offer := buildOffer(t, []string{"8", "0"}, nil)

		result, err := negotiateOffer("t1", offer, media.CodecOpus)
		if err != nil {
			t.Fatalf("согласование не удалось: %v", err)
		}
		if result.codec != media.CodecPCMA {
			t.Errorf("ожидался первый предложенный PCMA, выбран %s", result.codec.Name())
		}
	})

	t.Run("динамический opus по rtpmap", func(t *testing.T) {
		offer := buildOffer(t, []string{"111"}, []string{
			"rtpmap:111 opus/48000/2",
		})

		result, err := negotiateOffer("t1", offer, media.CodecOpus)
		if err != nil {
			t.Fatalf("согласование не удалось: %v", err)
		}
		if result.codec != media.CodecOpus {
			t.Errorf("ожидался opus, выбран %s", result.codec.Name())
		}
		if result.payloadType != 111 {
			t.Errorf("payload type должен повторять offer: получен %d", result.payloadType)
		}
	})

	t.Run("ptime и telephone-event извлекаются", func(t *testing.T) {
		offer := buildOffer(t, []string{"0", "101"}, []string{
			"rtpmap:0 PCMU/8000",
			"rtpmap:101 telephone-event/8000",
			"fmtp:101 0-15",
			"ptime:30",
		})

		result, err := negotiateOffer("t1", offer, media.CodecPCMU)
		if err != nil {
			t.Fatalf("согласование не удалось: %v", err)
		}
		if result.ptime != 30*time.Millisecond {
			t.Errorf("ожидался ptime 30мс, получен %s", result.ptime)
		}
		if result.dtmfPayload != 101 {
			t.Errorf("ожидался telephone-event payload 101, получен %d", result.dtmfPayload)
		}
	})

	t.Run("только неподдерживаемые кодеки", func(t *testing.T) {
		offer := buildOffer(t, []string{"97"}, []string{
			"rtpmap:97 iLBC/8000",
		})

		_, err := negotiateOffer("t1", offer, media.CodecPCMU)
		if err == nil {
			t.Fatal("ожидалась ошибка согласования")
		}
		if !media.IsCode(err, media.ErrorCodeUnsupportedCodec) {
			t.Errorf("ожидался код UnsupportedCodec, получено: %v", err)
		}
	})

	t.Run("offer без аудио", func(t *testing.T) {
		offer := []byte("v=0\r\no=- 1 1 IN IP4 10.0.0.1\r\ns=test\r\n" +
			"c=IN IP4 10.0.0.1\r\nt=0 0\r\nm=video 5000 RTP/AVP 96\r\n")

		_, err := negotiateOffer("t1", offer, media.CodecPCMU)
		if !media.IsCode(err, media.ErrorCodeNegotiationError) {
			t.Errorf("ожидался код NegotiationError, получено: %v", err)
		}
	})

	t.Run("мусор вместо SDP", func(t *testing.T) {
		_, err := negotiateOffer("t1", []byte("not an sdp"), media.CodecPCMU)
		if !media.IsCode(err, media.ErrorCodeNegotiationError) {
			t.Errorf("ожидался код NegotiationError, получено: %v", err)
		}
	})

	t.Run("c= на уровне сессии при отсутствии медиа уровня", func(t *testing.T) {
		offer := buildOffer(t, []string{"0"}, nil)

		result, err := negotiateOffer("t1", offer, media.CodecPCMU)
		if err != nil {
			t.Fatalf("согласование не удалось: %v", err)
		}
		if result.remoteAddr != "192.168.1.100:49170" {
			t.Errorf("неверный удалённый адрес: %s", result.remoteAddr)
		}
	})
}

func TestBuildAnswer(t *testing.T) {
	result := &negotiationResult{
		codec:       media.CodecPCMU,
		payloadType: 0,
		ptime:       DefaultPtime,
		dtmfPayload: 101,
	}

	answer, err := buildAnswer(nil, result)
	if err != nil {
		t.Fatalf("answer не построен: %v", err)
	}

	desc := &sdp.SessionDescription{}
	if err := desc.Unmarshal(answer); err != nil {
		t.Fatalf("answer не разбирается: %v\n%s", err, answer)
	}
	if len(desc.MediaDescriptions) != 1 {
		t.Fatalf("ожидалось одно медиа описание, получено %d", len(desc.MediaDescriptions))
	}

	md := desc.MediaDescriptions[0]
	if len(md.MediaName.Formats) != 2 {
		t.Errorf("ожидались форматы кодека и telephone-event, получено %v", md.MediaName.Formats)
	}
	if md.MediaName.Formats[0] != "0" {
		t.Errorf("первым форматом должен быть принятый кодек: %v", md.MediaName.Formats)
	}

	text := string(answer)
	if !strings.Contains(text, "a=rtpmap:0 PCMU/8000") {
		t.Errorf("в answer нет rtpmap принятого кодека:\n%s", text)
	}
	if !strings.Contains(text, "a=ptime:20") {
		t.Errorf("в answer нет ptime:\n%s", text)
	}
	if !strings.Contains(text, "a=sendrecv") {
		t.Errorf("в answer нет направления sendrecv:\n%s", text)
	}
	if !strings.Contains(text, "telephone-event/8000") {
		t.Errorf("в answer нет telephone-event:\n%s", text)
	}
}

func TestBuildDeclinedAnswer(t *testing.T) {
	offer := buildOffer(t, []string{"97", "98"}, []string{
		"rtpmap:97 iLBC/8000",
		"rtpmap:98 speex/8000",
	})

	answer := buildDeclinedAnswer(nil, offer)
	if answer == nil {
		t.Fatal("отклоняющий answer не построен")
	}

	desc := &sdp.SessionDescription{}
	if err := desc.Unmarshal(answer); err != nil {
		t.Fatalf("отклоняющий answer не разбирается: %v\n%s", err, answer)
	}

	md := desc.MediaDescriptions[0]
	if md.MediaName.Port.Value != 0 {
		t.Errorf("отклонённый поток должен иметь порт 0, получен %d", md.MediaName.Port.Value)
	}
	if len(md.MediaName.Formats) != 2 {
		t.Errorf("answer должен повторять форматы offer: %v", md.MediaName.Formats)
	}
}
