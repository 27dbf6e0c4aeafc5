package shared

import "errors"

var (
	// ErrDataUnavailable indicates the upstream market data provider could not
	// supply bars for a symbol.
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrMalformedInput indicates a bar sequence violates its structural
	// invariants.
	ErrMalformedInput = errors.New("malformed bar sequence")
)
