package media

// ResampleMono преобразует частоту дискретизации моно PCM потока.
//
// Точное уменьшение вдвое выполняется децимацией с двухточечным
// усредняющим антиалиасным фильтром; остальные соотношения — линейной
// интерполяцией. Длина результата находится в пределах ±1 сэмпла от
// len(samples) * toRate / fromRate.
func ResampleMono(samples []int16, fromRate, toRate uint32) []int16 {
	if fromRate == toRate || len(samples) == 0 {
		out := make([]int16, len(samples))
		copy(out, samples)
		return out
	}

	if fromRate == toRate*2 {
		return decimateHalf(samples)
	}

	outLen := int(uint64(len(samples)) * uint64(toRate) / uint64(fromRate))
	if outLen == 0 {
		return nil
	}
	step := float64(fromRate) / float64(toRate)
	out := make([]int16, outLen)
	for i := 0; i < outLen; i++ {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(idx)
		val := float64(samples[idx])*(1.0-frac) + float64(samples[idx+1])*frac
		out[i] = int16(val)
	}
	return out
}

// decimateHalf уменьшает частоту ровно вдвое: усредняющий фильтр по
// соседним сэмплам подавляет алиасинг, затем берётся каждый второй.
func decimateHalf(samples []int16) []int16 {
	if len(samples) < 2 {
		return nil
	}
	out := make([]int16, 0, len(samples)/2)
	for i := 0; i+1 < len(samples); i += 2 {
		avg := int16((int32(samples[i]) + int32(samples[i+1])) / 2)
		out = append(out, avg)
	}
	return out
}
