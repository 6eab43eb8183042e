package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidParameters 网格参数不合法，不会提交任何订单
	ErrInvalidParameters = errors.New("invalid grid parameters")
	// ErrNotConnected 尚未连接交易所时执行交易操作
	ErrNotConnected = errors.New("not connected to exchange")
	// ErrConnectInProgress 上一次连接尚未完成
	ErrConnectInProgress = errors.New("connect already in progress")
)

// ExchangeError 包装单次交易所请求失败
type ExchangeError struct {
	Op     string
	Symbol string
	Err    error
}

// NewExchangeError 构造一个 ExchangeError
func NewExchangeError(op, symbol string, err error) *ExchangeError {
	return &ExchangeError{Op: op, Symbol: symbol, Err: err}
}

func (e *ExchangeError) Error() string {
	if e.Symbol == "" {
		return fmt.Sprintf("exchange %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("exchange %s %s failed: %v", e.Op, e.Symbol, e.Err)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}
