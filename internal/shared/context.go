package shared

import (
	"context"
	"time"
)

// Actor identifies who triggers a business event and which clock applies.
type Actor struct {
	UserID int64
	Now    func() time.Time
}

// SystemActor is used by background jobs.
var SystemActor = Actor{UserID: 1}

// Time returns the actor clock, defaulting to wall time in UTC.
func (a Actor) Time() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now().UTC()
}

// Today truncates Time to the calendar day.
func (a Actor) Today() time.Time {
	t := a.Time()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context for logging and auditing.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor, falling back to SystemActor.
func ActorFromContext(ctx context.Context) Actor {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	if !ok {
		return SystemActor
	}
	return actor
}
