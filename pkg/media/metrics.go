package media

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus метрики аудио пайплайна.
// Лейблы ограничены именами процессоров и кодеков чтобы не раздувать
// кардинальность (идентификаторы треков в лейблы не попадают).
var (
	framesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "media_engine",
		Subsystem: "pipeline",
		Name:      "frames_processed_total",
		Help:      "Фреймы, прошедшие цепочку процессоров до конца",
	})

	frameErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "media_engine",
		Subsystem: "pipeline",
		Name:      "frame_errors_total",
		Help:      "Фреймы, отброшенные процессором цепочки",
	}, []string{"processor"})

	framesEncoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "media_engine",
		Subsystem: "transcode",
		Name:      "frames_encoded_total",
		Help:      "Закодированные исходящие фреймы по кодекам",
	}, []string{"codec"})

	decodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "media_engine",
		Subsystem: "transcode",
		Name:      "decode_errors_total",
		Help:      "Входящие фреймы с неподдерживаемым payload type",
	})

	encodeSkips = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "media_engine",
		Subsystem: "transcode",
		Name:      "encode_skips_total",
		Help:      "Кодирования с пустым результатом (нефатальный пропуск)",
	})
)

// RecordEncodedFrame учитывает закодированный исходящий фрейм
func RecordEncodedFrame(codec Codec) {
	framesEncoded.WithLabelValues(codec.Name()).Inc()
}

// RecordDecodeError учитывает фрейм с неподдерживаемым кодеком
func RecordDecodeError() {
	decodeErrors.Inc()
}

// RecordEncodeSkip учитывает нефатальный пропуск пустого кодирования
func RecordEncodeSkip() {
	encodeSkips.Inc()
}
