// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package txbuilder

import (
	"fmt"
	"math/big"
)

type causerSign string

const (
	// CauserBuyer defines that the buyer funding balance caused this error type.
	CauserBuyer causerSign = "buyer"
	// CauserFeeFunding defines that the fee funding output caused this error type.
	CauserFeeFunding causerSign = "fee-funding"
)

// InsufficientError is the error type to describe insufficient balance errors with details.
type InsufficientError struct {
	Need   *big.Int
	Have   *big.Int
	Causer causerSign
}

// NewInsufficientError is a constructor for InsufficientError.
func NewInsufficientError(need, have *big.Int) *InsufficientError {
	return &InsufficientError{need, have, ""}
}

// Error returns error description.
func (e *InsufficientError) Error() string {
	var errMsg = "insufficient bitcoin balance"

	if e.Have != nil || e.Need != nil {
		errMsg += fmt.Sprintf(": Need - %s, Have - %s", e.Need, e.Have)
	}

	if e.Causer != "" {
		errMsg += " (" + string(e.Causer) + ")"
	}

	return errMsg
}

// Is implements comparator method for [errors] package.
func (e *InsufficientError) Is(target error) bool {
	return e.Error() == target.Error()
}

// WithCauser returns InsufficientError with provided causer set.
func (e *InsufficientError) WithCauser(causer causerSign) *InsufficientError {
	return &InsufficientError{e.Need, e.Have, causer}
}
