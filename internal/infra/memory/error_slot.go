package memory

import (
	"context"
	"sync"
)

// ErrorSlot is a process-local last-error slot.
type ErrorSlot struct {
	mu  sync.RWMutex
	msg string
}

func NewErrorSlot() *ErrorSlot { return &ErrorSlot{} }

func (e *ErrorSlot) Set(_ context.Context, msg string) error {
	e.mu.Lock()
	e.msg = msg
	e.mu.Unlock()
	return nil
}

func (e *ErrorSlot) Get(_ context.Context) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.msg, nil
}

func (e *ErrorSlot) Clear(_ context.Context) error {
	e.mu.Lock()
	e.msg = ""
	e.mu.Unlock()
	return nil
}
