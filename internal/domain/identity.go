package domain

import "strings"

// Identity — логический владелец корзины: гостевой бакет или конкретный пользователь.
type Identity string

// Guest — идентичность неаутентифицированного посетителя.
const Guest Identity = "guest"

// IsGuest сообщает, относится ли идентичность к гостевому бакету.
func (i Identity) IsGuest() bool {
	v := strings.TrimSpace(string(i))
	return v == "" || v == string(Guest)
}

// Normalize приводит пустое значение к Guest.
func (i Identity) Normalize() Identity {
	if i.IsGuest() {
		return Guest
	}
	return Identity(strings.TrimSpace(string(i)))
}

func (i Identity) String() string {
	return string(i.Normalize())
}
