package media

import (
	"time"
)

// Codec поддерживаемый аудио кодек.
type Codec int

const (
	CodecPCMU Codec = iota // G.711 μ-law
	CodecPCMA              // G.711 A-law
	CodecG722
	CodecOpus
	CodecTelephoneEvent // RFC 4733 DTMF
)

// Константы payload типов из RFC 3551 и договорённых динамических
const (
	PayloadTypePCMU           = uint8(0)
	PayloadTypePCMA           = uint8(8)
	PayloadTypeG722           = uint8(9)
	PayloadTypeTelephoneEvent = uint8(101)
	PayloadTypeOpus           = uint8(111)
)

// CodecFromPayloadType возвращает кодек по payload type.
// Второе значение false для неизвестного тега.
func CodecFromPayloadType(payloadType uint8) (Codec, bool) {
	switch payloadType {
	case PayloadTypePCMU:
		return CodecPCMU, true
	case PayloadTypePCMA:
		return CodecPCMA, true
	case PayloadTypeG722:
		return CodecG722, true
	case PayloadTypeOpus:
		return CodecOpus, true
	case PayloadTypeTelephoneEvent:
		return CodecTelephoneEvent, true
	default:
		return 0, false
	}
}

// PayloadType возвращает RTP payload type кодека
func (c Codec) PayloadType() uint8 {
	switch c {
	case CodecPCMU:
		return PayloadTypePCMU
	case CodecPCMA:
		return PayloadTypePCMA
	case CodecG722:
		return PayloadTypeG722
	case CodecOpus:
		return PayloadTypeOpus
	case CodecTelephoneEvent:
		return PayloadTypeTelephoneEvent
	default:
		return PayloadTypePCMU
	}
}

// ClockRate возвращает RTP clock rate кодека.
// Для G.722 clock rate исторически 8000 несмотря на 16kHz аудио (RFC 3551).
func (c Codec) ClockRate() uint32 {
	switch c {
	case CodecOpus:
		return 48000
	default:
		return 8000
	}
}

// FrameSize возвращает размер фрейма в сэмплах для 20мс пакета
func (c Codec) FrameSize() int {
	// 20ms при clock rate: 960 для 48kHz, 160 для 8kHz
	return int(c.ClockRate() / 50)
}

// FrameDuration возвращает длительность одного фрейма
func (c Codec) FrameDuration() time.Duration {
	return 20 * time.Millisecond
}

// MimeType возвращает MIME тип кодека для SDP
func (c Codec) MimeType() string {
	switch c {
	case CodecPCMU:
		return "audio/PCMU"
	case CodecPCMA:
		return "audio/PCMA"
	case CodecG722:
		return "audio/G722"
	case CodecOpus:
		return "audio/opus"
	case CodecTelephoneEvent:
		return "audio/telephone-event"
	default:
		return "audio/PCMU"
	}
}

// Name возвращает имя кодирования для rtpmap
func (c Codec) Name() string {
	switch c {
	case CodecPCMU:
		return "PCMU"
	case CodecPCMA:
		return "PCMA"
	case CodecG722:
		return "G722"
	case CodecOpus:
		return "opus"
	case CodecTelephoneEvent:
		return "telephone-event"
	default:
		return "PCMU"
	}
}

func (c Codec) String() string { return c.Name() }

// --- G.711 μ-law ---

const (
	ulawBias = 0x84
	ulawClip = 32635
)

// LinearToUlaw кодирует один линейный сэмпл в G.711 μ-law
func LinearToUlaw(pcm int16) byte {
	sample := int32(pcm)
	sign := byte(0)
	if sample < 0 {
		sample = -sample
		sign = 0x80
	}
	if sample > ulawClip {
		sample = ulawClip
	}
	sample += ulawBias

	exponent := 7
	for mask := int32(0x4000); exponent > 0 && sample&mask == 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte((sample >> (uint(exponent) + 3)) & 0x0F)
	return ^(sign | byte(exponent)<<4 | mantissa)
}

// UlawToLinear декодирует один μ-law байт в линейный сэмпл
func UlawToLinear(ulaw byte) int16 {
	u := ^ulaw
	sign := u & 0x80
	exponent := (u >> 4) & 0x07
	mantissa := u & 0x0F

	sample := (int32(mantissa)<<3 + ulawBias) << exponent
	sample -= ulawBias
	if sign != 0 {
		sample = -sample
	}
	return int16(sample)
}

// EncodePCMU кодирует PCM сэмплы в G.711 μ-law
func EncodePCMU(samples []int16) []byte {
	encoded := make([]byte, len(samples))
	for i, s := range samples {
		encoded[i] = LinearToUlaw(s)
	}
	return encoded
}

// DecodePCMU декодирует G.711 μ-law в PCM сэмплы
func DecodePCMU(data []byte) []int16 {
	samples := make([]int16, len(data))
	for i, b := range data {
		samples[i] = UlawToLinear(b)
	}
	return samples
}

// --- G.711 A-law ---

const alawClip = 32635

// LinearToAlaw кодирует один линейный сэмпл в G.711 A-law
func LinearToAlaw(pcm int16) byte {
	sample := int32(pcm)
	mask := byte(0xD5)
	if sample < 0 {
		mask = 0x55
		sample = -sample - 1
	}
	if sample > alawClip {
		sample = alawClip
	}

	var aval byte
	if sample >= 256 {
		exponent := 7
		for m := int32(0x4000); exponent > 1 && sample&m == 0; m >>= 1 {
			exponent--
		}
		aval = byte(exponent)<<4 | byte((sample>>(uint(exponent)+3))&0x0F)
	} else {
		aval = byte(sample >> 4)
	}
	return aval ^ mask
}

// AlawToLinear декодирует один A-law байт в линейный сэмпл
func AlawToLinear(alaw byte) int16 {
	a := alaw ^ 0x55
	t := int32(a&0x0F) << 4
	seg := (a & 0x70) >> 4
	switch seg {
	case 0:
		t += 8
	case 1:
		t += 0x108
	default:
		t += 0x108
		t <<= seg - 1
	}
	if a&0x80 != 0 {
		return int16(t)
	}
	return int16(-t)
}

// EncodePCMA кодирует PCM сэмплы в G.711 A-law
func EncodePCMA(samples []int16) []byte {
	encoded := make([]byte, len(samples))
	for i, s := range samples {
		encoded[i] = LinearToAlaw(s)
	}
	return encoded
}

// DecodePCMA декодирует G.711 A-law в PCM сэмплы
func DecodePCMA(data []byte) []int16 {
	samples := make([]int16, len(data))
	for i, b := range data {
		samples[i] = AlawToLinear(b)
	}
	return samples
}

// --- G.722 ---
//
// Упрощённое 2:1 компандирование: пара сэмплов усредняется
// антиалиасным фильтром и кодируется μ-law байтом, декодер
// восстанавливает пару повторением. Контракт по длине:
// decode(encode(N)) == N сэмплов для чётного N.
//
// Это заглушка для согласования и внутреннего транзита: нагрузка
// НЕ совместима с настоящим ADPCM кодером G.722 по RFC 3551.
// Интероп с внешними G.722 эндпоинтами требует полноценного кодека.

// EncodeG722 кодирует PCM сэмплы, 2 сэмпла -> 1 байт
func EncodeG722(samples []int16) []byte {
	encoded := make([]byte, 0, (len(samples)+1)/2)
	for i := 0; i+1 < len(samples); i += 2 {
		avg := int16((int32(samples[i]) + int32(samples[i+1])) / 2)
		encoded = append(encoded, LinearToUlaw(avg))
	}
	if len(samples)%2 != 0 {
		encoded = append(encoded, LinearToUlaw(samples[len(samples)-1]))
	}
	return encoded
}

// DecodeG722 декодирует нагрузку, 1 байт -> 2 сэмпла
func DecodeG722(data []byte) []int16 {
	samples := make([]int16, 0, len(data)*2)
	for _, b := range data {
		s := UlawToLinear(b)
		samples = append(samples, s, s)
	}
	return samples
}
