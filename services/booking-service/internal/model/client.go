package model

import "time"

type Client struct {
	ID              string
	CompanyID       string
	Name            string
	Phone           string
	NormalizedPhone string
	Email           string
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
