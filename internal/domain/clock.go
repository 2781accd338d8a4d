package domain

import "time"

// Clock отдаёт текущее время (подменяется в тестах).
type Clock interface {
	Now() time.Time
}

// SystemClock — реальные часы.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc адаптирует функцию к Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }
