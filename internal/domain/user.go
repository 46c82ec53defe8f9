// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const MaxDisplayNameLen = 36

var (
	ErrUserIDEmpty        = errors.New("user id empty")
	ErrDisplayNameTooLong = errors.New("display name too long")
)

type (
	UserID    string
	MeetingID string
)
