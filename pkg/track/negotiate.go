package track

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/pion/sdp/v3"

	"github.com/arzzra/media_engine/pkg/media"
)

// Payload type для telephone-event (DTMF) по умолчанию
const defaultDTMFPayloadType = 101

// negotiationResult итог согласования по SDP offer
type negotiationResult struct {
	codec       media.Codec
	payloadType uint8 // echo payload type из offer для динамических кодеков
	remoteAddr  string
	ptime       time.Duration
	dtmfPayload uint8 // 0 если telephone-event не предложен
}

// negotiateOffer разбирает offer, выбирает ровно один аудио кодек и
// извлекает адрес удалённой стороны. Предпочитаемый кодек берётся,
// если предложен; иначе первый поддерживаемый в порядке offer.
func negotiateOffer(trackID string, offer []byte, preferred media.Codec) (*negotiationResult, error) {
	desc := &sdp.SessionDescription{}
	if err := desc.Unmarshal(offer); err != nil {
		return nil, media.WrapError(media.ErrorCodeNegotiationError, trackID,
			"SDP offer не разбирается", err)
	}

	var audioMedia *sdp.MediaDescription
	for _, md := range desc.MediaDescriptions {
		if md.MediaName.Media == "audio" {
			audioMedia = md
			break
		}
	}
	if audioMedia == nil {
		return nil, media.NewError(media.ErrorCodeNegotiationError, trackID,
			"аудио медиа описание не найдено в offer")
	}

	result := &negotiationResult{ptime: DefaultPtime}

	if err := selectCodec(trackID, audioMedia, preferred, result); err != nil {
		return nil, err
	}
	if err := extractConnection(trackID, desc, audioMedia, result); err != nil {
		return nil, err
	}
	parsePtime(audioMedia, result)
	parseDTMF(audioMedia, result)
	return result, nil
}

// selectCodec выбирает кодек среди предложенных форматов.
// Статические payload types сверяются с таблицей RFC 3551, динамические —
// по rtpmap (имя кодека + clock rate).
func selectCodec(trackID string, audioMedia *sdp.MediaDescription, preferred media.Codec, result *negotiationResult) error {
	rtpmaps := make(map[string]string)
	for _, attr := range audioMedia.Attributes {
		if attr.Key == "rtpmap" {
			parts := strings.SplitN(attr.Value, " ", 2)
			if len(parts) == 2 {
				rtpmaps[parts[0]] = parts[1]
			}
		}
	}

	type candidate struct {
		codec media.Codec
		pt    uint8
	}
	var candidates []candidate

	for _, format := range audioMedia.MediaName.Formats {
		pt, err := strconv.Atoi(format)
		if err != nil || pt < 0 || pt > 127 {
			continue
		}

		var codec media.Codec
		if rtpmap, exists := rtpmaps[format]; exists {
			matched, ok := codecFromRtpmap(rtpmap)
			if !ok {
				continue
			}
			codec = matched
		} else {
			matched, ok := media.CodecFromPayloadType(uint8(pt))
			if !ok || matched == media.CodecTelephoneEvent {
				continue
			}
			codec = matched
		}
		candidates = append(candidates, candidate{codec: codec, pt: uint8(pt)})
	}

	if len(candidates) == 0 {
		return media.NewError(media.ErrorCodeUnsupportedCodec, trackID,
			"не найден совместимый кодек среди предложенных: "+
				strings.Join(audioMedia.MediaName.Formats, " "))
	}

	for _, c := range candidates {
		if c.codec == preferred {
			result.codec = c.codec
			result.payloadType = c.pt
			return nil
		}
	}
	result.codec = candidates[0].codec
	result.payloadType = candidates[0].pt
	return nil
}

// codecFromRtpmap сопоставляет rtpmap ("PCMU/8000", "opus/48000/2")
// с поддерживаемым кодеком
func codecFromRtpmap(rtpmap string) (media.Codec, bool) {
	parts := strings.Split(rtpmap, "/")
	if len(parts) < 2 {
		return 0, false
	}
	clockRate, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}

	for _, codec := range []media.Codec{media.CodecPCMU, media.CodecPCMA, media.CodecG722, media.CodecOpus} {
		if strings.EqualFold(parts[0], codec.Name()) && uint32(clockRate) == codec.ClockRate() {
			return codec, true
		}
	}
	return 0, false
}

func extractConnection(trackID string, desc *sdp.SessionDescription, audioMedia *sdp.MediaDescription, result *negotiationResult) error {
	conn := audioMedia.ConnectionInformation
	if conn == nil {
		conn = desc.ConnectionInformation
	}
	if conn == nil || conn.Address == nil {
		return media.NewError(media.ErrorCodeNegotiationError, trackID,
			"в offer отсутствует информация о соединении")
	}
	result.remoteAddr = net.JoinHostPort(conn.Address.Address,
		strconv.Itoa(audioMedia.MediaName.Port.Value))
	return nil
}

func parsePtime(audioMedia *sdp.MediaDescription, result *negotiationResult) {
	for _, attr := range audioMedia.Attributes {
		if attr.Key == "ptime" {
			if ms, err := strconv.Atoi(attr.Value); err == nil && ms > 0 {
				result.ptime = time.Duration(ms) * time.Millisecond
			}
			return
		}
	}
}

func parseDTMF(audioMedia *sdp.MediaDescription, result *negotiationResult) {
	for _, attr := range audioMedia.Attributes {
		if attr.Key != "rtpmap" {
			continue
		}
		parts := strings.SplitN(attr.Value, " ", 2)
		if len(parts) != 2 || !strings.HasPrefix(strings.ToLower(parts[1]), "telephone-event/") {
			continue
		}
		if pt, err := strconv.Atoi(parts[0]); err == nil && pt >= 96 && pt <= 127 {
			result.dtmfPayload = uint8(pt)
			return
		}
	}
}

// buildAnswer строит SDP answer с ровно одним принятым кодеком
func buildAnswer(localAddr net.Addr, result *negotiationResult) ([]byte, error) {
	host, port := splitLocalAddr(localAddr)

	attributes := []sdp.Attribute{
		sdp.NewAttribute("rtpmap", rtpmapValue(result.codec, result.payloadType)),
		sdp.NewAttribute("ptime", strconv.Itoa(int(result.ptime/time.Millisecond))),
		sdp.NewPropertyAttribute("sendrecv"),
	}
	formats := []string{strconv.Itoa(int(result.payloadType))}

	if result.dtmfPayload != 0 {
		dtmf := strconv.Itoa(int(result.dtmfPayload))
		formats = append(formats, dtmf)
		attributes = append(attributes,
			sdp.NewAttribute("rtpmap", dtmf+" telephone-event/8000"),
			sdp.NewAttribute("fmtp", dtmf+" 0-15"))
	}

	answer := answerSkeleton(host)
	answer.MediaDescriptions = []*sdp.MediaDescription{{
		MediaName: sdp.MediaName{
			Media:   "audio",
			Port:    sdp.RangedPort{Value: port},
			Protos:  []string{"RTP", "AVP"},
			Formats: formats,
		},
		Attributes: attributes,
	}}
	return answer.Marshal()
}

// buildDeclinedAnswer строит синтаксически валидный answer с отклонённым
// аудио потоком (порт 0). Возвращается вместе с ошибкой согласования,
// чтобы сигнальный слой мог корректно завершить обмен.
func buildDeclinedAnswer(localAddr net.Addr, offer []byte) []byte {
	host, _ := splitLocalAddr(localAddr)

	formats := []string{"0"}
	desc := &sdp.SessionDescription{}
	if err := desc.Unmarshal(offer); err == nil {
		for _, md := range desc.MediaDescriptions {
			if md.MediaName.Media == "audio" && len(md.MediaName.Formats) > 0 {
				formats = md.MediaName.Formats
				break
			}
		}
	}

	answer := answerSkeleton(host)
	answer.MediaDescriptions = []*sdp.MediaDescription{{
		MediaName: sdp.MediaName{
			Media:   "audio",
			Port:    sdp.RangedPort{Value: 0},
			Protos:  []string{"RTP", "AVP"},
			Formats: formats,
		},
	}}

	data, err := answer.Marshal()
	if err != nil {
		return nil
	}
	return data
}

func answerSkeleton(host string) *sdp.SessionDescription {
	sessionID := uint64(time.Now().UnixNano())
	return &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      sessionID,
			SessionVersion: sessionID,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: host,
		},
		SessionName: "media_engine",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: host},
		},
		TimeDescriptions: []sdp.TimeDescription{{}},
	}
}

func rtpmapValue(codec media.Codec, payloadType uint8) string {
	value := strconv.Itoa(int(payloadType)) + " " + codec.Name() + "/" +
		strconv.Itoa(int(codec.ClockRate()))
	if codec == media.CodecOpus {
		value += "/2"
	}
	return value
}

func splitLocalAddr(addr net.Addr) (string, int) {
	host, port := "0.0.0.0", 0
	if addr == nil {
		return host, port
	}
	h, p, err := net.SplitHostPort(addr.String())
	if err != nil {
		return host, port
	}
	if h != "" && h != "::" {
		host = h
	}
	if v, err := strconv.Atoi(p); err == nil {
		port = v
	}
	return host, port
}
