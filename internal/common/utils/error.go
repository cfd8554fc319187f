package utils

import (
	"errors"
	"runtime/debug"
)

// stackError はエラーが最初に報告された地点のスタックトレースを持ちます
type stackError struct {
	err   error
	stack []byte
}

func (e *stackError) Error() string {
	return e.err.Error() + "\nStack trace:\n" + string(e.stack)
}

func (e *stackError) Unwrap() error {
	return e.err
}

// GetStackWithError はエラーにスタックトレースを付けて返します
// 既にスタックトレースを持つエラーはそのまま返します
func GetStackWithError(err error) error {
	if err == nil {
		return nil
	}
	var se *stackError
	if errors.As(err, &se) {
		return err
	}
	return &stackError{err: err, stack: debug.Stack()}
}
