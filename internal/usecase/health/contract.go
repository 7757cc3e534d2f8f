package health

import "context"

// DatastorePinger checks datastore availability.
type DatastorePinger interface {
	Ping(ctx context.Context) error
}

// CachePinger checks query cache availability.
type CachePinger interface {
	Ping(ctx context.Context) error
}
