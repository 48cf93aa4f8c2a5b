package recon

import "errors"

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidConfig is returned when a Config or Calendar cannot be used.
	ErrInvalidConfig = errors.New("invalid engine config")

	// ErrNoData is returned by the Analyzer when neither revision carries
	// any data point. The comparison would be empty.
	ErrNoData = errors.New("no data points in either revision")
)

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidConfig) || errors.Is(err, ErrNoData)
}
