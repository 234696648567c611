// Package entitlement answers how many drawings a tier may keep.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dkeye/Inkroom/internal/store"
	"github.com/rs/zerolog/log"
)

type Tier string

const (
	TierFree   Tier = "free"
	TierPro    Tier = "pro"
	TierStudio Tier = "studio"
)

var ErrLimitReached = errors.New("drawing limit reached")

// Limit is the number of saved drawings a tier may hold.
type Limit struct {
	Max       int  `json:"max"`
	Unlimited bool `json:"unlimited"`
}

func (l Limit) Allows(count int) bool {
	return l.Unlimited || count < l.Max
}

var defaultLimits = map[Tier]Limit{
	TierFree:   {Max: 5},
	TierPro:    {Max: 100},
	TierStudio: {Unlimited: true},
}

// Table resolves tiers to limits. Unknown tiers get the free limit.
type Table struct {
	limits map[Tier]Limit
}

// NewTable overlays configured limits on the defaults. A negative value
// means unlimited.
func NewTable(overrides map[string]int) *Table {
	t := &Table{limits: make(map[Tier]Limit, len(defaultLimits))}
	for tier, l := range defaultLimits {
		t.limits[tier] = l
	}
	for name, n := range overrides {
		tier := Tier(strings.ToLower(strings.TrimSpace(name)))
		if n < 0 {
			t.limits[tier] = Limit{Unlimited: true}
		} else {
			t.limits[tier] = Limit{Max: n}
		}
	}
	return t
}

func (t *Table) GetDrawingLimit(tier Tier) Limit {
	if l, ok := t.limits[tier]; ok {
		return l
	}
	return t.limits[TierFree]
}

// Guard checks the limit before a save reaches the store.
type Guard struct {
	Limits *Table
	Store  store.DrawingStore
}

// CheckSave reports ErrLimitReached when creating one more drawing would
// exceed the tier's limit. Updates to an existing drawing are always allowed.
func (g *Guard) CheckSave(ctx context.Context, userID string, tier Tier, update bool) error {
	if update {
		return nil
	}
	limit := g.Limits.GetDrawingLimit(tier)
	if limit.Unlimited {
		return nil
	}
	existing, err := g.Store.List(ctx, userID)
	if err != nil {
		return fmt.Errorf("count drawings: %w", err)
	}
	if !limit.Allows(len(existing)) {
		log.Info().Str("module", "entitlement").Str("user", userID).Str("tier", string(tier)).
			Int("count", len(existing)).Int("max", limit.Max).Msg("save blocked")
		return fmt.Errorf("%w: %s tier keeps %d", ErrLimitReached, tier, limit.Max)
	}
	return nil
}
