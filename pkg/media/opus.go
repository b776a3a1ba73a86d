package media

import (
	"fmt"

	"layeh.com/gopus"
)

// Opus в телефонном профиле: 48kHz, моно, фреймы 20мс (960 сэмплов).
const (
	opusSampleRate = 48000
	opusChannels   = 1
	opusFrameSize  = opusSampleRate / 50
	// Максимальный размер закодированного Opus пакета
	opusMaxPacket = 4000
)

// OpusEncoder stateful обёртка над gopus энкодером.
// Энкодер сохраняет внутреннее состояние между фреймами и не
// потокобезопасен: каждый трек владеет собственным экземпляром.
type OpusEncoder struct {
	enc *gopus.Encoder
}

// NewOpusEncoder создает Opus энкодер для телефонии (48kHz, моно, VoIP профиль)
func NewOpusEncoder() (*OpusEncoder, error) {
	enc, err := gopus.NewEncoder(opusSampleRate, opusChannels, gopus.Voip)
	if err != nil {
		return nil, fmt.Errorf("создание opus энкодера: %w", err)
	}
	return &OpusEncoder{enc: enc}, nil
}

// Encode кодирует ровно один фрейм из 960 сэмплов (20мс при 48kHz).
// Неполный фрейм дополняется тишиной.
func (e *OpusEncoder) Encode(samples []int16) ([]byte, error) {
	frame := samples
	if len(samples) != opusFrameSize {
		frame = make([]int16, opusFrameSize)
		copy(frame, samples)
	}
	data, err := e.enc.Encode(frame, opusFrameSize, opusMaxPacket)
	if err != nil {
		return nil, fmt.Errorf("opus encode: %w", err)
	}
	return data, nil
}

// OpusDecoder stateful обёртка над gopus декодером
type OpusDecoder struct {
	dec *gopus.Decoder
}

// NewOpusDecoder создает Opus декодер (48kHz, моно)
func NewOpusDecoder() (*OpusDecoder, error) {
	dec, err := gopus.NewDecoder(opusSampleRate, opusChannels)
	if err != nil {
		return nil, fmt.Errorf("создание opus декодера: %w", err)
	}
	return &OpusDecoder{dec: dec}, nil
}

// Decode декодирует один Opus пакет в PCM сэмплы
func (d *OpusDecoder) Decode(payload []byte) ([]int16, error) {
	pcm, err := d.dec.Decode(payload, opusFrameSize, false)
	if err != nil {
		return nil, fmt.Errorf("opus decode: %w", err)
	}
	return pcm, nil
}
