package mq

import "errors"

// ErrNoChannel — AMQP канал не открыт (идёт переподключение).
var ErrNoChannel = errors.New("no channel available")

// permanentError помечает ошибку обработки, которую бессмысленно повторять.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent оборачивает ошибку обработчика: сообщение уходит в DLQ
// без возврата в очередь.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent проверяет, помечена ли ошибка через Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
