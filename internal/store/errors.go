package store

import "errors"

// ErrInsufficientFunds reports that a guarded balance update would have
// driven a balance or locked amount negative.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrNotFound reports that a guarded update matched no row.
var ErrNotFound = errors.New("not found")
