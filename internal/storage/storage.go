package storage

import "errors"

var (
	ErrUserExists        = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")
	ErrCardNotFound      = errors.New("card not found")
	ErrBalanceNotFound   = errors.New("balance not found")
	ErrStatsNotFound     = errors.New("stats not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
)
