package apperrors

import "errors"

// Standardized Liquidation Errors
var (
	ErrAuctionAlreadyExists   = errors.New("auction already exists")
	ErrAuctionDoesNotExist    = errors.New("auction does not exist")
	ErrAccountNotLiquidatable = errors.New("account not liquidatable")
	ErrPriceNotPopulated      = errors.New("price not populated for timestamp")
	ErrZeroValueAuction       = errors.New("auction has zero collateral value")
	ErrUnknownAsset           = errors.New("asset not part of auction")
	ErrInvalidTime            = errors.New("timestamp precedes auction start")
	ErrUnknownAccount         = errors.New("account not registered")
)
