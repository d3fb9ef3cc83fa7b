package domain

import "time"

// Tier enumerates the loyalty levels a member can hold.
type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

// Point thresholds marking the lower bound of each tier.
const (
	SilverThreshold   = 500
	GoldThreshold     = 1500
	PlatinumThreshold = 5000
)

// TierFor derives the tier for a point balance. The highest qualifying
// threshold wins, so every non-negative balance maps to exactly one tier.
func TierFor(points int) Tier {
	switch {
	case points >= PlatinumThreshold:
		return TierPlatinum
	case points >= GoldThreshold:
		return TierGold
	case points >= SilverThreshold:
		return TierSilver
	default:
		return TierBronze
	}
}

// TierInfo carries the static metadata attached to a tier.
type TierInfo struct {
	Name      string   `json:"name"`
	MinPoints int      `json:"min_points"`
	NextTier  *Tier    `json:"next_tier,omitempty"`
	Benefits  []string `json:"benefits"`
}

var tierCatalog = map[Tier]TierInfo{
	TierBronze: {
		Name:      "Bronze",
		MinPoints: 0,
		NextTier:  tierPtr(TierSilver),
		Benefits:  []string{"Birthday reward", "Member-only offers"},
	},
	TierSilver: {
		Name:      "Silver",
		MinPoints: SilverThreshold,
		NextTier:  tierPtr(TierGold),
		Benefits:  []string{"Birthday reward", "Member-only offers", "Free shipping over 30€"},
	},
	TierGold: {
		Name:      "Gold",
		MinPoints: GoldThreshold,
		NextTier:  tierPtr(TierPlatinum),
		Benefits:  []string{"Birthday reward", "Member-only offers", "Free shipping", "Early access to new flavours"},
	},
	TierPlatinum: {
		Name:      "Platinum",
		MinPoints: PlatinumThreshold,
		Benefits:  []string{"Birthday reward", "Member-only offers", "Free shipping", "Early access to new flavours", "Annual tasting box"},
	},
}

// TierInfoFor returns the static metadata for a tier.
func TierInfoFor(tier Tier) TierInfo {
	if info, ok := tierCatalog[tier]; ok {
		return info
	}
	return tierCatalog[TierBronze]
}

func tierPtr(t Tier) *Tier {
	return &t
}

// NextTier reports the tier above the one a balance currently qualifies for,
// with the points still needed to reach it. ok is false at the top tier.
func NextTier(points int) (next Tier, pointsNeeded int, ok bool) {
	info := TierInfoFor(TierFor(points))
	if info.NextTier == nil {
		return "", 0, false
	}

	next = *info.NextTier
	needed := TierInfoFor(next).MinPoints - points
	if needed < 0 {
		needed = 0
	}
	return next, needed, true
}

// LoyaltyMember mirrors the persisted representation in the loyalty_members table.
// Tier is intentionally absent: it is recomputed from Points on every read.
type LoyaltyMember struct {
	UserID      string
	Points      int
	TotalSpent  float64
	OrdersCount int
	JoinedAt    time.Time
}

// Tier returns the tier derived from the current point balance.
func (m LoyaltyMember) Tier() Tier {
	return TierFor(m.Points)
}

// Redemption records a historical point-spending event.
type Redemption struct {
	ID         string
	UserID     string
	Points     int
	Reward     string
	RedeemedAt time.Time
}
