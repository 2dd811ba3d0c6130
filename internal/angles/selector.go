// Package angles ranks the strategic messaging angles a contractor's creatives
// should lead with. Selection is pure and deterministic.
package angles

import (
	"sort"
	"strings"

	"adforge/internal/domain/jsoncfg"
)

// ID identifies a strategic angle.
type ID string

const (
	EnergySavings  ID = "energy_savings"
	Trust          ID = "trust"
	Financing      ID = "financing"
	Speed          ID = "speed"
	LocalExpert    ID = "local_expert"
	Warranty       ID = "warranty"
	SeasonalPromo  ID = "seasonal_promo"
	PremiumQuality ID = "premium_quality"
)

// StrategicAngle is a ranked messaging theme.
type StrategicAngle struct {
	ID       ID  `json:"id"`
	Priority int `json:"priority"`
}

var basePriority = map[ID]int{
	EnergySavings:  50,
	Trust:          45,
	Financing:      40,
	LocalExpert:    25,
	Speed:          20,
	Warranty:       20,
	PremiumQuality: 15,
	SeasonalPromo:  10,
}

var defaultAngles = []StrategicAngle{
	{ID: EnergySavings, Priority: 50},
	{ID: Trust, Priority: 45},
	{ID: Financing, Priority: 40},
}

// Select ranks angles for bi and keeps the first topN (topN <= 0 keeps all).
// Input without any recognised signal yields the default set.
func Select(bi jsoncfg.BusinessIntelligence, topN int) []StrategicAngle {
	bi = bi.Normalize()
	boosts, recognised := score(bi)

	var ranked []StrategicAngle
	if !recognised {
		ranked = append(ranked, defaultAngles...)
	} else {
		ranked = make([]StrategicAngle, 0, len(basePriority))
		for id, base := range basePriority {
			ranked = append(ranked, StrategicAngle{ID: id, Priority: base + boosts[id]})
		}
		sort.Slice(ranked, func(i, j int) bool {
			if ranked[i].Priority != ranked[j].Priority {
				return ranked[i].Priority > ranked[j].Priority
			}
			return ranked[i].ID < ranked[j].ID
		})
	}

	if topN > 0 && topN < len(ranked) {
		ranked = ranked[:topN]
	}
	return ranked
}

// IDs returns the identifiers of angles in order.
func IDs(angles []StrategicAngle) []string {
	out := make([]string, len(angles))
	for i, a := range angles {
		out[i] = string(a.ID)
	}
	return out
}

func score(bi jsoncfg.BusinessIntelligence) (map[ID]int, bool) {
	boosts := make(map[ID]int)
	recognised := false
	hit := func(id ID, delta int) {
		recognised = true
		boosts[id] += delta
	}

	if v, ok := bi.Bool("offers_financing"); ok {
		recognised = true
		if v {
			hit(Financing, 45)
		}
	}
	if v, ok := bi.Bool("energy_star"); ok {
		recognised = true
		if v {
			hit(EnergySavings, 30)
		}
	}
	if climate, ok := bi.String("climate"); ok {
		switch strings.ToLower(climate) {
		case "hot", "cold", "extreme":
			hit(EnergySavings, 10)
		default:
			recognised = true
		}
	}
	if years, ok := bi.Int("years_in_business"); ok {
		switch {
		case years >= 10:
			hit(Trust, 30)
		case years >= 5:
			hit(Trust, 15)
		default:
			recognised = true
		}
	}
	if rating, ok := bi.Int("review_rating"); ok && rating >= 4 {
		hit(Trust, 10)
	}
	if days, ok := bi.Int("install_days"); ok && days > 0 {
		switch {
		case days <= 3:
			hit(Speed, 40)
		case days <= 7:
			hit(Speed, 20)
		default:
			recognised = true
		}
	}
	if _, ok := bi.String("city"); ok {
		hit(LocalExpert, 15)
	}
	if len(bi.Strings("service_area")) > 0 {
		hit(LocalExpert, 10)
	}
	if lifetime, ok := bi.Bool("lifetime_warranty"); ok && lifetime {
		hit(Warranty, 40)
	} else if years, ok := bi.Int("warranty_years"); ok {
		switch {
		case years >= 20:
			hit(Warranty, 40)
		case years >= 10:
			hit(Warranty, 20)
		default:
			recognised = true
		}
	}
	if _, ok := bi.String("current_promotion"); ok {
		hit(SeasonalPromo, 50)
	}
	if tier, ok := bi.String("price_tier"); ok {
		if strings.EqualFold(tier, "premium") {
			hit(PremiumQuality, 35)
		} else {
			recognised = true
		}
	}
	if len(bi.Strings("brands")) > 0 {
		hit(PremiumQuality, 20)
	}
	return boosts, recognised
}
