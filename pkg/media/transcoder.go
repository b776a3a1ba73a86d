package media

import "strconv"

// Transcoder объединяет кодеры/декодеры всех поддерживаемых кодеков
// для одного трека. Stateful кодеки (Opus) создаются лениво и
// переиспользуются между фреймами.
//
// Transcoder не потокобезопасен: каждый трек владеет собственным
// экземпляром.
type Transcoder struct {
	opusEnc *OpusEncoder
	opusDec *OpusDecoder
}

// NewTranscoder создает транскодер
func NewTranscoder() *Transcoder {
	return &Transcoder{}
}

// Decode декодирует закодированную нагрузку по payload type.
// Неизвестный payload type возвращает ошибку UnsupportedCodec:
// фрейм отбрасывается, трек продолжает работу.
func (t *Transcoder) Decode(payloadType uint8, payload []byte) ([]int16, error) {
	codec, ok := CodecFromPayloadType(payloadType)
	if !ok {
		return nil, NewError(ErrorCodeUnsupportedCodec, "",
			"неизвестный payload type "+strconv.Itoa(int(payloadType)))
	}
	switch codec {
	case CodecPCMU:
		return DecodePCMU(payload), nil
	case CodecPCMA:
		return DecodePCMA(payload), nil
	case CodecG722:
		return DecodeG722(payload), nil
	case CodecOpus:
		if t.opusDec == nil {
			dec, err := NewOpusDecoder()
			if err != nil {
				return nil, WrapError(ErrorCodeUnsupportedCodec, "", "opus декодер недоступен", err)
			}
			t.opusDec = dec
		}
		return t.opusDec.Decode(payload)
	default:
		// telephone-event не несёт аудио
		return nil, NewError(ErrorCodeUnsupportedCodec, "",
			"payload type "+strconv.Itoa(int(payloadType))+" не содержит аудио")
	}
}

// Encode кодирует PCM сэмплы в нагрузку данного кодека.
// Сэмплы должны быть на clock rate кодека.
func (t *Transcoder) Encode(codec Codec, samples []int16) ([]byte, error) {
	switch codec {
	case CodecPCMU:
		return EncodePCMU(samples), nil
	case CodecPCMA:
		return EncodePCMA(samples), nil
	case CodecG722:
		return EncodeG722(samples), nil
	case CodecOpus:
		if t.opusEnc == nil {
			enc, err := NewOpusEncoder()
			if err != nil {
				return nil, WrapError(ErrorCodeEncodingFailure, "", "opus энкодер недоступен", err)
			}
			t.opusEnc = enc
		}
		return t.opusEnc.Encode(samples)
	default:
		return nil, NewError(ErrorCodeUnsupportedCodec, "", "кодирование в "+codec.Name()+" не поддерживается")
	}
}

// SamplesToBytes преобразует PCM сэмплы в little-endian байты (linear16)
func SamplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return data
}

// BytesToSamples преобразует little-endian байты (linear16) в PCM сэмплы.
// Нечётный хвост отбрасывается.
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}
