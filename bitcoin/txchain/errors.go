// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package txchain

import "errors"

// ErrBuildTransactions defines errors class for transaction chain building.
var ErrBuildTransactions = errors.New("build transactions")

// ErrNoInscriptionPSTs defines that no seller inscription psts were provided.
var ErrNoInscriptionPSTs = errors.New("no inscription psts provided")

// ErrUnsupportedBuyerAddress defines that buyer address type is not supported.
var ErrUnsupportedBuyerAddress = errors.New("buyer address must be a segwit or taproot address")

// ErrInvalidSellerPST defines that seller inscription pst is malformed.
var ErrInvalidSellerPST = errors.New("invalid seller pst")

// ErrInscriptionNotFound defines that inscription index has no record at the referenced outpoint.
var ErrInscriptionNotFound = errors.New("inscription not found")

// ErrInscriptionOwnershipMismatch defines that inscription record owner differs from the pst signer.
var ErrInscriptionOwnershipMismatch = errors.New("inscription ownership mismatch")

// ErrNoOutputSelected defines that transaction building yielded no outputs.
var ErrNoOutputSelected = errors.New("no output selected")

// ErrUnsupportedScriptType defines that output script type is not supported for chaining.
var ErrUnsupportedScriptType = errors.New("unsupported script type")

// ErrFeeConvergenceTimeout defines that fee convergence loop exceeded iteration bound.
var ErrFeeConvergenceTimeout = errors.New("fee convergence iteration limit exceeded")
