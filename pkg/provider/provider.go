package provider

import "context"

// Resolver supplies the ProviderConfig for a provider ID. Implementations
// own credential storage; the gateway treats the result as immutable for
// the lifetime of one request.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Resolver interface {
	Resolve(ctx context.Context, id string) (ProviderConfig, error)
}

// ResolverFunc is an adapter that allows using an ordinary function as a
// Resolver.
type ResolverFunc func(ctx context.Context, id string) (ProviderConfig, error)

// Resolve calls f(ctx, id).
func (f ResolverFunc) Resolve(ctx context.Context, id string) (ProviderConfig, error) {
	return f(ctx, id)
}
