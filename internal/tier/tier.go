// Package tier classifies memory events into decay tiers by age,
// significance and access frequency.
package tier

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/humbrol2/humbbot-memory/internal/model"
)

// Rule admits an event to Tier when it is younger than MaxAge and its
// effective significance is strictly above MinSignificance.
type Rule struct {
	Tier            model.Tier    `yaml:"tier"`
	MaxAge          time.Duration `yaml:"max_age"`
	MinSignificance float64       `yaml:"min_significance"`
}

// Policy holds the ordered tier rules and the access boost settings.
// Events matching no rule are archived.
type Policy struct {
	Rules          []Rule  `yaml:"rules"`
	AccessBoost    float64 `yaml:"access_boost"`
	AccessBoostCap float64 `yaml:"access_boost_cap"`
}

// DefaultPolicy returns the standard thresholds: Hot under 2h, Warm under 24h,
// Cool under 7d, Cold under 30d.
func DefaultPolicy() Policy {
	return Policy{
		Rules: []Rule{
			{Tier: model.TierHot, MaxAge: 2 * time.Hour, MinSignificance: 0.3},
			{Tier: model.TierWarm, MaxAge: 24 * time.Hour, MinSignificance: 0.2},
			{Tier: model.TierCool, MaxAge: 7 * 24 * time.Hour, MinSignificance: 0.15},
			{Tier: model.TierCold, MaxAge: 30 * 24 * time.Hour, MinSignificance: 0.1},
		},
		AccessBoost:    0.1,
		AccessBoostCap: 0.5,
	}
}

// EffectiveSignificance boosts significance by access frequency, bounded to 1.0.
func (p Policy) EffectiveSignificance(significance float64, accessCount int) float64 {
	if accessCount < 0 {
		accessCount = 0
	}
	boost := math.Min(float64(accessCount)*p.AccessBoost, p.AccessBoostCap)
	return math.Min(significance+boost, 1.0)
}

// Classify returns the tier for an event. It has no side effects.
func (p Policy) Classify(age time.Duration, significance float64, accessCount int) model.Tier {
	eff := p.EffectiveSignificance(significance, accessCount)
	for _, r := range p.Rules {
		if age < r.MaxAge && eff > r.MinSignificance {
			return r.Tier
		}
	}
	return model.TierArchived
}

// ClassifyEvent classifies e as of now.
func (p Policy) ClassifyEvent(e *model.Event, now time.Time) model.Tier {
	return p.Classify(e.Age(now), e.Significance, e.AccessCount)
}

// ArchiveAge is the age past which every event is archived.
func (p Policy) ArchiveAge() time.Duration {
	var max time.Duration
	for _, r := range p.Rules {
		if r.MaxAge > max {
			max = r.MaxAge
		}
	}
	return max
}

// Validate checks that rule ages grow strictly and that no rule admits
// archived events.
func (p Policy) Validate() error {
	if len(p.Rules) == 0 {
		return fmt.Errorf("tier rules: at least one rule is required")
	}
	var prev time.Duration
	for i, r := range p.Rules {
		if r.Tier == "" || r.Tier == model.TierArchived {
			return fmt.Errorf("tier rule %d: invalid tier %q", i, r.Tier)
		}
		if r.MaxAge <= prev {
			return fmt.Errorf("tier rule %d (%s): max_age %s must exceed %s", i, r.Tier, r.MaxAge, prev)
		}
		if r.MinSignificance < 0 || r.MinSignificance > 1 {
			return fmt.Errorf("tier rule %d (%s): min_significance %v out of [0,1]", i, r.Tier, r.MinSignificance)
		}
		prev = r.MaxAge
	}
	if p.AccessBoost < 0 || p.AccessBoostCap < 0 {
		return fmt.Errorf("access boost must not be negative")
	}
	return nil
}

var defaultPolicy = DefaultPolicy()

// Classify classifies with the default policy.
func Classify(age time.Duration, significance float64, accessCount int) model.Tier {
	return defaultPolicy.Classify(age, significance, accessCount)
}

// EffectiveSignificance computes effective significance with the default policy.
func EffectiveSignificance(significance float64, accessCount int) float64 {
	return defaultPolicy.EffectiveSignificance(significance, accessCount)
}

var ageRegex = regexp.MustCompile(`^(\d+)([wdhms])$`)

// ParseAge parses an age like "7d", "24h", "30m" or "2w". Anything
// time.ParseDuration accepts also works.
func ParseAge(s string) (time.Duration, error) {
	m := ageRegex.FindStringSubmatch(s)
	if m == nil {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid age %q (use e.g. 2w, 7d, 24h, 30m)", s)
		}
		return d, nil
	}
	n, _ := strconv.Atoi(m[1])
	switch m[2] {
	case "w":
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	case "d":
		return time.Duration(n) * 24 * time.Hour, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	case "m":
		return time.Duration(n) * time.Minute, nil
	}
	return time.Duration(n) * time.Second, nil
}
