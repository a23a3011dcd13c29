// Package keylock — эксклюзивные удержания по строковому ключу
// (роль, инструмент, заявка) с ожиданием, прерываемым контекстом.
package keylock

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

type slot struct {
	sem  *semaphore.Weighted
	refs int
}

type Locker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

func New() *Locker { return &Locker{slots: make(map[string]*slot)} }

// Lock ждёт освобождения ключа или отмены ctx. Возвращённая функция
// освобождает удержание; повторный вызов безопасен.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{sem: semaphore.NewWeighted(1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		l.drop(key, s)
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			s.sem.Release(1)
			l.drop(key, s)
		})
	}, nil
}

func (l *Locker) drop(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// Len — число ключей, которые сейчас удерживаются или ожидаются.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
