package archive

import (
	"context"
	"strings"

	"gitclauder/pkg/protocol"

	"go.uber.org/zap"
)

// tierSeparator joins tiers in a loaded context.
const tierSeparator = "\n\n"

// Content returns the readable text of one tier: its record blocks in order,
// frame lines removed. Unreadable or missing tiers are empty.
func (a *Archive) Content(tier int) string {
	chunks, err := a.Records(tier)
	if err != nil {
		a.log.Warn("tier unreadable, treating as empty", zap.Int("tier", tier), zap.Error(err))
		return ""
	}
	var b strings.Builder
	for _, c := range chunks {
		b.Write(Unframe(c))
	}
	return b.String()
}

// Load builds the context for a task at the given priority level: tier 1,
// then tier 2 when level >= 2, then tier 3 when level >= 3, separated by a
// blank line. Tier 1 comes first even though tier 3 is chronologically
// oldest; callers depend on this order. Levels outside 1..3 are clamped.
func (a *Archive) Load(ctx context.Context, level protocol.Level) string {
	if level < protocol.LevelHot {
		level = protocol.LevelHot
	}
	if level > protocol.LevelCold {
		level = protocol.LevelCold
	}

	parts := make([]string, 0, int(level))
	for tier := TierHot; tier <= int(level); tier++ {
		if ctx.Err() != nil {
			break
		}
		if c := a.Content(tier); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, tierSeparator)
}
