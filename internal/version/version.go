// Package version хранит сведения о сборке, выставляемые через -ldflags.
package version

import "fmt"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GetVersion возвращает версию сборки.
func GetVersion() string { return version }

// UserAgent формирует User-Agent для исходящих запросов сервиса.
func UserAgent() string {
	return fmt.Sprintf("storefront-session/%s", version)
}

// String описывает сборку целиком для стартового лога.
func String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", version, commit, date)
}
