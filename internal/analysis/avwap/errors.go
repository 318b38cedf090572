package avwap

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput 表示锚点列表为空，无法求最小值。
	ErrEmptyInput = errors.New("empty anchor list")
	// ErrParse 表示锚点不是合法的日期/时间。
	ErrParse = errors.New("invalid anchor date")
)

// ParseError 携带无法解析的原始 token。
type ParseError struct {
	Token string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v: %q", ErrParse, e.Token)
}

func (e *ParseError) Unwrap() error { return ErrParse }
