package engine

import (
	"math"
	"time"

	"bitunix-trading-bot/internal/models"
)

type dedupeKey struct {
	symbol  string
	pattern models.PatternType
}

type dedupeRecord struct {
	level float64
	ts    time.Time
}

// shouldEmit applies the sliding dedup/cooldown filter. A candidate is
// suppressed when its primary level sits within DedupeLevelPct of the last
// emitted level for the same (symbol, pattern) AND its timestamp falls within
// CooldownMinutes of that emission. On admission the record is overwritten;
// suppression leaves state untouched. Stale records simply age out of the
// time check, they are never deleted.
func (e *RuleEngine) shouldEmit(ev models.SetupEvent) bool {
	key := dedupeKey{symbol: ev.Symbol, pattern: ev.PatternType}
	level := ev.Context.PrimaryLevel()

	if prev, ok := e.lastEmitted[key]; ok {
		levelSimilar := math.Abs(level-prev.level)/math.Max(level, 1e-12) <= e.params.DedupeLevelPct
		tooSoon := ev.Timestamp.Sub(prev.ts) <= time.Duration(e.params.CooldownMinutes)*time.Minute
		if levelSimilar && tooSoon {
			return false
		}
	}

	e.lastEmitted[key] = dedupeRecord{level: level, ts: ev.Timestamp}
	return true
}
