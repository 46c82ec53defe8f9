package domain

import "errors"

var ErrInvalidTier = errors.New("invalid quality tier")
