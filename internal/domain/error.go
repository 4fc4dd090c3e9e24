package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid database execution context")

	// Billing
	ErrCompanyNotFound          = errors.New("company not found")
	ErrUnsupportedPlan          = errors.New("unsupported plan")
	ErrDuplicatePayment         = errors.New("a recent pending payment already exists for this plan")
	ErrActiveSubscriptionExists = errors.New("company already has an active subscription for this plan")
	ErrPaymentTerminal          = errors.New("payment already reached a terminal status")
	ErrRateLimited              = errors.New("too many requests")

	// Gateways
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrMalformedEvent     = errors.New("malformed webhook event")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrGatewayRejected    = errors.New("payment gateway rejected the request")
)
