package mq

import "errors"

// nonRetryableError 标记不可重试的处理错误
type nonRetryableError struct {
	err error
}

func (e *nonRetryableError) Error() string { return e.err.Error() }

func (e *nonRetryableError) Unwrap() error { return e.err }

// NonRetryable 将错误标记为不可重试，适配器遇到后直接死信
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &nonRetryableError{err: err}
}

// IsNonRetryable 判断错误是否被标记为不可重试
func IsNonRetryable(err error) bool {
	var nr *nonRetryableError
	return errors.As(err, &nr)
}
