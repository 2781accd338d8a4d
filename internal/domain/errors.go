package domain

import "errors"

var (
	// ErrProductIDRequired возвращается, если у товара нет положительного идентификатора.
	ErrProductIDRequired = errors.New("product id must be greater than zero")
	// ErrProductNameRequired возвращается, если у товара пустое название.
	ErrProductNameRequired = errors.New("product name is required")
	// Ошибка количества вне диапазона 1..CartMaxQuantity.
	ErrCartQuantityInvalid = errors.New("cart item quantity is out of range")
	// Ошибка отсутствующей позиции корзины.
	ErrCartItemNotFound = errors.New("cart item not found")
	// Ошибка повторного добавления товара в сравнение.
	ErrCompareAlreadyPresent = errors.New("product is already in compare list")
	// Ошибка переполнения набора сравнения.
	ErrCompareLimitExceeded = errors.New("compare list limit exceeded")
	// ErrKeyRequired возвращается хранилищами при пустом ключе.
	ErrKeyRequired = errors.New("storage key is required")
	// ErrStorageQuotaExceeded возвращается, если запись превышает квоту хранилища.
	ErrStorageQuotaExceeded = errors.New("storage quota exceeded")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// Ошибка отсутствующего или некорректного идентификатора устройства.
	ErrDeviceIDRequired = errors.New("device id is required")
	// Ошибка входа без токена сессии.
	ErrSessionTokenRequired = errors.New("session token is required")
	// Ошибка записи пользователя без id и email.
	ErrUserRecordInvalid = errors.New("user record must contain id or email")
	// ErrMirrorRejected — удалённый сервис отверг событие без шансов на успех при повторе.
	ErrMirrorRejected = errors.New("remote cart mirror rejected event")
)

// IsCompareRejection проверяет, является ли ошибка отказом политики сравнения.
func IsCompareRejection(err error) bool {
	return errors.Is(err, ErrCompareAlreadyPresent) || errors.Is(err, ErrCompareLimitExceeded)
}

// CompareRejectReason возвращает машинный код отказа для UI или пустую строку.
func CompareRejectReason(err error) string {
	switch {
	case errors.Is(err, ErrCompareAlreadyPresent):
		return "already_present"
	case errors.Is(err, ErrCompareLimitExceeded):
		return "limit_exceeded"
	default:
		return ""
	}
}
