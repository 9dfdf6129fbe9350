// Package recorder turns raw interaction input into memory events: it
// normalizes the payload, scores significance and assigns identity.
package recorder

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/humbrol2/humbbot-memory/internal/model"
)

// Recorder builds events. It is safe for concurrent use.
type Recorder struct {
	policy Policy
	now    func() time.Time

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// New returns a Recorder. A nil clock uses time.Now.
func New(policy Policy, now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{
		policy:  policy,
		now:     now,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// Policy returns the significance policy in use.
func (r *Recorder) Policy() Policy { return r.policy }

// Build creates a new event for p with a fresh ID and timestamp. Seq is
// left for the caller to assign.
func (r *Recorder) Build(p model.Payload, hint *float64) *model.Event {
	if p == nil {
		p = model.Generic{}
	}
	r.mu.Lock()
	now := r.now().UTC()
	id := ulid.MustNew(ulid.Timestamp(now), r.entropy).String()
	r.mu.Unlock()

	return &model.Event{
		ID:           id,
		Type:         p.EventType(),
		Timestamp:    now,
		Payload:      p,
		Significance: r.policy.Significance(p, hint),
		Tier:         model.TierHot,
	}
}

// Normalize decodes an externally supplied type tag and JSON body into a
// payload. It never fails: an unknown tag becomes a generic event carrying
// the tag, and a body that does not decode becomes a neutral payload. The
// returned error describes what was coerced, for logging.
func Normalize(tag string, raw []byte) (model.Payload, error) {
	t, ok := model.ParseEventType(tag)
	p, err := model.DecodePayload(t, raw)
	if !ok && strings.TrimSpace(tag) != "" {
		g, _ := p.(model.Generic)
		if err != nil {
			g = model.Generic{Text: strings.TrimSpace(string(raw))}
		}
		g.Tag = strings.TrimSpace(tag)
		return g, fmt.Errorf("unknown event type %q recorded as generic", tag)
	}
	if err != nil {
		if t == model.EventGeneric {
			return model.Generic{Text: strings.TrimSpace(string(raw))}, err
		}
		return p, err
	}
	return p, nil
}

// ParseHint reads an optional significance hint. Empty input means no hint.
func ParseHint(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid significance %q: %w", raw, err)
	}
	return &f, nil
}
