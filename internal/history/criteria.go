package history

import (
	"github.com/dyluth/vigil/pkg/ledger"
	"github.com/dyluth/vigil/pkg/protocol"
)

// Criteria defines filtering criteria for ticks.
// All filters are ANDed together.
type Criteria struct {
	SinceTimestampMs int64           // 0 = no lower bound
	UntilTimestampMs int64           // 0 = no upper bound
	Status           protocol.Status // empty = any status
	ValidatorID      string          // exact match, empty = any validator
}

// Matches returns true if the tick matches all filter criteria.
func (c *Criteria) Matches(t *ledger.Tick) bool {
	if c.SinceTimestampMs > 0 && t.CreatedAtMs < c.SinceTimestampMs {
		return false
	}
	if c.UntilTimestampMs > 0 && t.CreatedAtMs > c.UntilTimestampMs {
		return false
	}
	if c.Status != "" && t.Status != c.Status {
		return false
	}
	if c.ValidatorID != "" && t.ValidatorID != c.ValidatorID {
		return false
	}
	return true
}

// HasFilters returns true if any filters are active.
func (c *Criteria) HasFilters() bool {
	return c.SinceTimestampMs > 0 ||
		c.UntilTimestampMs > 0 ||
		c.Status != "" ||
		c.ValidatorID != ""
}
