package circulation

import "context"

// ConsistencyLevel selects whether reads may be served by a replica.
type ConsistencyLevel int

const (
	// StrongConsistency reads from the primary. Every locked pool operation reads this way.
	StrongConsistency ConsistencyLevel = iota

	// EventualConsistency allows read-only queries such as patron activity listings to use a replica.
	EventualConsistency
)

type contextKey string

const consistencyLevelKey contextKey = "circulation.consistency_level"

// WithStrongConsistency marks ctx so read-only queries go to the primary database.
func WithStrongConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, consistencyLevelKey, StrongConsistency)
}

// WithEventualConsistency marks ctx so read-only queries may use a replica.
//
//	ctx = circulation.WithEventualConsistency(ctx)
//	activity, err := store.PatronActivity(ctx, patronID)
func WithEventualConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, consistencyLevelKey, EventualConsistency)
}

// GetConsistencyLevel returns the level stored in ctx, StrongConsistency when unset.
func GetConsistencyLevel(ctx context.Context) ConsistencyLevel {
	if level, ok := ctx.Value(consistencyLevelKey).(ConsistencyLevel); ok {
		return level
	}

	return StrongConsistency
}

func (c ConsistencyLevel) String() string {
	switch c {
	case StrongConsistency:
		return "strong"
	case EventualConsistency:
		return "eventual"
	default:
		return "unknown"
	}
}
