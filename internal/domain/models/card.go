package models

import "time"

type Card struct {
	ID          int64
	UserID      int64
	Number      string
	HolderName  string
	ExpiryMonth string
	ExpiryYear  string
	Background  string
	Network     string
	CreatedAt   time.Time
}
