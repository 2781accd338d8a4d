package domain

// Ключи локального key-value хранилища. Каждое хранилище владеет своим
// непересекающимся пространством ключей.
const (
	// KeyCartPrefix — префикс ключа корзины, полный ключ cart_<identity>.
	KeyCartPrefix = "cart_"
	// KeyCompare — единый ключ набора сравнения устройства.
	KeyCompare = "gamingstore_compare"
	// KeyRecentlyViewed — единый ключ истории просмотров устройства.
	KeyRecentlyViewed = "gamingstore_recently_viewed"
	// KeyToken — токен сессии, пишется auth-флоу; здесь только читается.
	KeyToken = "gamingstore_token"
	// KeyUser — сериализованная запись пользователя; здесь только читается.
	KeyUser = "gamingstore_user"
	// MirrorTokenPrefix — общий для процесса префикс токенов синхронизации,
	// полный ключ mirror:token:<identity>. Вне пространства устройства.
	MirrorTokenPrefix = "mirror:token:"
)

// CartKey возвращает ключ корзины для идентичности.
func CartKey(id Identity) string {
	return KeyCartPrefix + id.String()
}
