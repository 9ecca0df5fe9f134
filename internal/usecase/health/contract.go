package health

import "context"

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// ActorChecker reports whether the network actor still accepts commands.
type ActorChecker interface {
	Alive() bool
}
