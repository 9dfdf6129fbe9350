package tier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/humbrol2/humbbot-memory/internal/model"
)

func TestClassify_FreshSignificantIsHot(t *testing.T) {
	for _, s := range []float64{0.31, 0.4, 0.5, 0.75, 0.9, 1.0} {
		assert.Equal(t, model.TierHot, Classify(0, s, 0), "significance %v", s)
	}
}

func TestClassify_Thresholds(t *testing.T) {
	tests := []struct {
		name   string
		age    time.Duration
		sig    float64
		access int
		want   model.Tier
	}{
		{"hot", time.Hour, 0.5, 0, model.TierHot},
		{"low significance skips hot", time.Hour, 0.25, 0, model.TierWarm},
		{"warm", 3 * time.Hour, 0.5, 0, model.TierWarm},
		{"cool", 2 * 24 * time.Hour, 0.5, 0, model.TierCool},
		{"cold", 10 * 24 * time.Hour, 0.5, 0, model.TierCold},
		{"archived by age", 31 * 24 * time.Hour, 1.0, 10, model.TierArchived},
		{"archived by significance", time.Hour, 0.05, 0, model.TierArchived},
		{"access boost promotes", time.Hour, 0.25, 1, model.TierHot},
		{"boundary is exclusive", 2 * time.Hour, 0.9, 0, model.TierWarm},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.age, tt.sig, tt.access))
		})
	}
}

func TestEffectiveSignificance_MonotoneAndBounded(t *testing.T) {
	for _, s := range []float64{0, 0.2, 0.55, 0.9, 1.0} {
		prev := -1.0
		for access := 0; access < 20; access++ {
			got := EffectiveSignificance(s, access)
			assert.GreaterOrEqual(t, got, prev)
			assert.LessOrEqual(t, got, 1.0)
			prev = got
		}
	}
}

func TestEffectiveSignificance_BoostCap(t *testing.T) {
	assert.InDelta(t, 0.7, EffectiveSignificance(0.2, 100), 1e-9)
	assert.InDelta(t, 0.5, EffectiveSignificance(0.2, 3), 1e-9)
	assert.InDelta(t, 0.2, EffectiveSignificance(0.2, -4), 1e-9)
}

func TestClassify_Stable(t *testing.T) {
	p := DefaultPolicy()
	first := p.Classify(5*time.Hour, 0.42, 2)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, p.Classify(5*time.Hour, 0.42, 2))
	}
}

func TestArchiveAge(t *testing.T) {
	assert.Equal(t, 30*24*time.Hour, DefaultPolicy().ArchiveAge())
}

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())

	p := DefaultPolicy()
	p.Rules[1].MaxAge = time.Hour
	assert.Error(t, p.Validate(), "ages must grow")

	p = DefaultPolicy()
	p.Rules[0].Tier = model.TierArchived
	assert.Error(t, p.Validate())

	assert.Error(t, Policy{}.Validate())
}

func TestParseAge(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"2w", 14 * 24 * time.Hour},
		{"7d", 7 * 24 * time.Hour},
		{"24h", 24 * time.Hour},
		{"30m", 30 * time.Minute},
		{"45s", 45 * time.Second},
		{"1h30m", 90 * time.Minute},
	}
	for _, tt := range tests {
		got, err := ParseAge(tt.in)
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	_, err := ParseAge("soon")
	assert.Error(t, err)
}
