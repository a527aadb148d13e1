// ABOUTME: Conflict resolution strategies for diverged local/server records.
// ABOUTME: Exposed as a pure function; callers choose the strategy per use case.
package fieldsync

import "fmt"

// Strategy selects which side wins when a record diverged.
type Strategy string

const (
	StrategyLocal  Strategy = "local"  // discard server state
	StrategyServer Strategy = "server" // discard local state
	StrategyMerge  Strategy = "merge"  // shallow overlay, server wins per key
)

// ResolveConflict resolves a diverged record according to strategy. Inputs
// are never mutated; merge is a shallow field-level overlay where server
// values take precedence on key collision.
func ResolveConflict(local, server map[string]any, strategy Strategy) (map[string]any, error) {
	switch strategy {
	case StrategyLocal:
		return copyRecord(local), nil
	case StrategyServer:
		return copyRecord(server), nil
	case StrategyMerge:
		merged := copyRecord(local)
		for k, v := range server {
			merged[k] = v
		}
		return merged, nil
	default:
		return nil, fmt.Errorf("unknown conflict strategy: %q", strategy)
	}
}

func copyRecord(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
