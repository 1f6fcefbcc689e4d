// Package tier decides which tier a memory belongs to.
package tier

import (
	"strings"
	"time"

	"github.com/rcliao/tiermem/internal/model"
)

// DefaultLongTermImportance is the importance above which an otherwise
// unclassified memory is kept long-term.
const DefaultLongTermImportance = 0.7

var episodicKinds = map[string]bool{
	"conversation": true,
	"interaction":  true,
	"dialogue":     true,
	"chat":         true,
	"message":      true,
	"episode":      true,
	"episodic":     true,
	"event":        true,
}

var semanticKinds = map[string]bool{
	"fact":       true,
	"knowledge":  true,
	"concept":    true,
	"definition": true,
	"reference":  true,
	"semantic":   true,
}

// Placement is the outcome of categorization.
type Placement struct {
	Primary model.Tier
	Working bool
}

// Rules parameterize Assign.
type Rules struct {
	LongTermImportance float64
	WorkingWindow      time.Duration
}

// DefaultRules returns the stock thresholds.
func DefaultRules() Rules {
	return Rules{LongTermImportance: DefaultLongTermImportance, WorkingWindow: time.Hour}
}

// Assign is a pure function of its inputs. Type wins over importance:
// conversational kinds are episodic, knowledge kinds semantic, then
// importance above the cutoff is long-term and everything else short-term.
// A memory created within the working window is also in the working overlay.
func (r Rules) Assign(typ string, importance float64, createdAt, now time.Time) Placement {
	p := Placement{Primary: r.Primary(typ, importance)}
	age := now.Sub(createdAt)
	p.Working = age >= 0 && age < r.WorkingWindow
	return p
}

// Primary returns only the exclusive tier.
func (r Rules) Primary(typ string, importance float64) model.Tier {
	kind := strings.ToLower(strings.TrimSpace(typ))
	switch {
	case episodicKinds[kind]:
		return model.TierEpisodic
	case semanticKinds[kind]:
		return model.TierSemantic
	case importance > r.LongTermImportance:
		return model.TierLongTerm
	default:
		return model.TierShortTerm
	}
}
