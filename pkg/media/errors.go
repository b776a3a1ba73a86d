package media

import (
	"errors"
	"fmt"
)

// ErrorCode определяет типизированные коды ошибок медиа пайплайна.
// Позволяет классифицировать ошибки по категориям и выбирать политику
// обработки: per-frame ошибки логируются и фрейм отбрасывается, ошибки
// сборки пайплайна фатальны для установки звонка.
type ErrorCode int

const (
	// Ошибки согласования сессии
	ErrorCodeNegotiationError ErrorCode = iota + 2000
	ErrorCodeNegotiationTimeout

	// Ошибки транскодирования
	ErrorCodeUnsupportedCodec
	ErrorCodeEncodingFailure
	ErrorCodeInvalidFrame

	// Ошибки клиентов потоковых провайдеров
	ErrorCodeNotConnected
	ErrorCodeMaxReconnectAttemptsExceeded

	// Ошибки сборки пайплайна
	ErrorCodeUnknownProviderTag
	ErrorCodeBridgeUnavailable
)

// String возвращает строковое представление кода ошибки
func (code ErrorCode) String() string {
	switch code {
	case ErrorCodeNegotiationError:
		return "NegotiationError"
	case ErrorCodeNegotiationTimeout:
		return "NegotiationTimeout"
	case ErrorCodeUnsupportedCodec:
		return "UnsupportedCodec"
	case ErrorCodeEncodingFailure:
		return "EncodingFailure"
	case ErrorCodeInvalidFrame:
		return "InvalidFrame"
	case ErrorCodeNotConnected:
		return "NotConnected"
	case ErrorCodeMaxReconnectAttemptsExceeded:
		return "MaxReconnectAttemptsExceeded"
	case ErrorCodeUnknownProviderTag:
		return "UnknownProviderTag"
	case ErrorCodeBridgeUnavailable:
		return "BridgeUnavailable"
	default:
		return fmt.Sprintf("Unknown(%d)", int(code))
	}
}

// Error структурированная ошибка медиа пайплайна.
// Несёт типизированный код, идентификатор трека для сопоставления
// с логами и опционально обёрнутую ошибку.
type Error struct {
	Code    ErrorCode
	TrackID string
	Message string
	Wrapped error
}

func (e *Error) Error() string {
	if e.TrackID != "" {
		if e.Wrapped != nil {
			return fmt.Sprintf("[%s] track=%s: %s: %v", e.Code, e.TrackID, e.Message, e.Wrapped)
		}
		return fmt.Sprintf("[%s] track=%s: %s", e.Code, e.TrackID, e.Message)
	}
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// NewError создает новую ошибку пайплайна
func NewError(code ErrorCode, trackID, message string) *Error {
	return &Error{Code: code, TrackID: trackID, Message: message}
}

// WrapError оборачивает существующую ошибку с кодом пайплайна
func WrapError(code ErrorCode, trackID, message string, err error) *Error {
	return &Error{Code: code, TrackID: trackID, Message: message, Wrapped: err}
}

// IsCode проверяет что ошибка (или любая в её цепочке) несёт данный код
func IsCode(err error, code ErrorCode) bool {
	var me *Error
	if errors.As(err, &me) {
		return me.Code == code
	}
	return false
}
