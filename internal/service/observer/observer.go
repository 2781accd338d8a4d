// Package observer — синхронная рассылка уведомлений «состояние изменилось».
package observer

import (
	"sort"
	"sync"
)

// Registry хранит подписчиков одного хранилища.
type Registry struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func()
}

// Subscribe регистрирует fn и возвращает функцию отписки (идемпотентна).
func (r *Registry) Subscribe(fn func()) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.subs == nil {
		r.subs = make(map[int]func())
	}
	id := r.nextID
	r.nextID++
	r.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.subs, id)
		})
	}
}

// Notify вызывает подписчиков в порядке подписки. Вызывать без удержания
// блокировок хранилища: подписчики перечитывают состояние.
func (r *Registry) Notify() {
	r.mu.RLock()
	ids := make([]int, 0, len(r.subs))
	for id := range r.subs {
		ids = append(ids, id)
	}
	fns := make([]func(), 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		fns = append(fns, r.subs[id])
	}
	r.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}

// Len возвращает число подписчиков.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}
