package apperrors

import "errors"

// Lookup errors represent legitimately absent data. Callers distinguish these
// from provider failures: absence is a terminal state for the current call,
// never retried within it and never cached.
var (
	// ErrQuoteNotFound indicates no stored price quote exists for the
	// requested instrument, date, and cache version.
	ErrQuoteNotFound = errors.New("price quote not found")

	// ErrRateNotFound indicates no stored exchange rate exists for the
	// requested currency pair, date, and timing.
	ErrRateNotFound = errors.New("exchange rate not found")

	// ErrTransactionNotFound indicates that a transaction with the given ID does not exist.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrGatewayNotConfigured indicates gateway credentials have not been set up.
	ErrGatewayNotConfigured = errors.New("gateway credentials not configured")
)

// Provider errors represent upstream failures. These are retried via the
// fallback chain and are never written to any cache tier.
var (
	// ErrSubscriptionRequired indicates the provider gates the requested
	// instrument class behind a market-data subscription. Triggers
	// fallback, not retry.
	ErrSubscriptionRequired = errors.New("instrument requires a market data subscription")

	// ErrProviderThrottled indicates the provider rejected the call for
	// rate-limit reasons.
	ErrProviderThrottled = errors.New("provider rate limit exceeded")

	// ErrNoNumericData indicates the provider answered but every value in
	// the response was non-numeric. Treated the same as a failed call.
	ErrNoNumericData = errors.New("provider returned no numeric data")

	// ErrReportNotReady indicates a statement request was accepted but the
	// report is still being generated upstream.
	ErrReportNotReady = errors.New("flex report not ready")
)

// Invariant errors indicate a correctness bug rather than a data-sparsity
// condition. They abort the run.
var (
	// ErrInventoryInvariant indicates the matcher produced or observed an
	// impossible lot state (negative remaining quantity, over-consumption).
	ErrInventoryInvariant = errors.New("lot inventory invariant violated")
)

// Validation errors for request parameters.
var (
	// ErrInvalidDateRange indicates that the provided date range is invalid
	// (e.g., start date is after end date).
	ErrInvalidDateRange = errors.New("invalid date range")

	// ErrInvalidInstitution indicates an institution filter value that
	// cannot name a known source.
	ErrInvalidInstitution = errors.New("invalid institution")

	// ErrMissingRequiredField indicates that a required field is missing or empty.
	ErrMissingRequiredField = errors.New("missing required field")
)
