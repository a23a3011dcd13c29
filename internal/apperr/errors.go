// Package apperr — стабильные машиночитаемые классы ошибок домена.
//
// Проигрыш гонки (AlreadyProcessed, InsufficientStock ...) — обычный исход
// бизнес-операции, его проверяют через errors.Is. Всё, что не *Error, — сбой
// инфраструктуры и пробрасывается без изменений.
package apperr

import (
	"errors"
	"fmt"
)

type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

// WithMessage — тот же Code, конкретное сообщение.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Code: e.Code, Message: msg}
}

func (e *Error) WithMessagef(format string, args ...any) *Error {
	return &Error{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrNotFound           = &Error{Code: "E_NOT_FOUND"}
	ErrAlreadyProcessed   = &Error{Code: "E_ALREADY_PROCESSED"}
	ErrAlreadyClaimed     = &Error{Code: "E_ALREADY_CLAIMED"}
	ErrInsufficientStock  = &Error{Code: "E_INSUFFICIENT_STOCK"}
	ErrInvalidQuantity    = &Error{Code: "E_INVALID_QUANTITY"}
	ErrInvalidTransition  = &Error{Code: "E_INVALID_TRANSITION"}
	ErrNotOwner           = &Error{Code: "E_NOT_OWNER"}
	ErrLockTimeout        = &Error{Code: "E_LOCK_TIMEOUT"}
	ErrInvalidCredentials = &Error{Code: "E_INVALID_CREDENTIALS"}
	ErrInvalidArgument    = &Error{Code: "E_INVALID_ARGUMENT"}
)

// Code возвращает код класса или "" для ошибок инфраструктуры.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Transient — конфликт, который вызывающая сторона может повторить.
func Transient(err error) bool { return errors.Is(err, ErrLockTimeout) }
