package recon

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CONFIG - Thresholds and calendar used by every stage
// =============================================================================

// Config carries the constants of the engine. Tests vary them freely;
// production code starts from DefaultConfig.
type Config struct {
	Calendar *Calendar

	// Epsilon is the noise floor: deltas and sums at or below it are ignored.
	Epsilon decimal.Decimal

	// A removed forecast and a later added forecast are a delay when
	// added/removed lies strictly inside (DelayRatioMin, DelayRatioMax).
	DelayRatioMin decimal.Decimal
	DelayRatioMax decimal.Decimal

	// PoolClaimedForecasts lets a record already claimed by a conversion or
	// an order change still feed the added/removed forecast pools when its
	// forecast appears or vanishes. When false, a claimed record skips the
	// forecast step entirely.
	PoolClaimedForecasts bool
}

func DefaultConfig() Config {
	return Config{
		Calendar:             DefaultCalendar(),
		Epsilon:              decimal.RequireFromString("0.1"),
		DelayRatioMin:        decimal.RequireFromString("0.90"),
		DelayRatioMax:        decimal.RequireFromString("1.10"),
		PoolClaimedForecasts: true,
	}
}

// Validate checks the config is usable.
func (c Config) Validate() error {
	if c.Calendar == nil || c.Calendar.Len() == 0 {
		return fmt.Errorf("%w: calendar is empty", ErrInvalidConfig)
	}
	if !c.Epsilon.IsPositive() {
		return fmt.Errorf("%w: epsilon must be positive, got %s", ErrInvalidConfig, c.Epsilon)
	}
	if !c.DelayRatioMin.IsPositive() || !c.DelayRatioMax.GreaterThan(c.DelayRatioMin) {
		return fmt.Errorf("%w: delay ratio band (%s, %s) is empty or non-positive",
			ErrInvalidConfig, c.DelayRatioMin, c.DelayRatioMax)
	}
	return nil
}

// significant reports |d| > epsilon.
func (c Config) significant(d decimal.Decimal) bool {
	return d.Abs().GreaterThan(c.Epsilon)
}

func (c Config) periodIndex(label string) int {
	idx, _ := c.Calendar.Index(label)
	return idx
}
