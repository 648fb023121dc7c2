package graph

import "log/slog"

// Option configures a Builder.
//
// Example:
//
//	b := graph.NewBuilder(
//	    graph.WithAllocator(pool),
//	    graph.WithStrictResources(true),
//	)
type Option func(*builderOptions)

// builderOptions holds optional configuration for Builder creation.
type builderOptions struct {
	allocator Allocator
	strict    bool
	logger    *slog.Logger
}

// WithAllocator sets the allocator transient resources are created from.
// A graph that declares transients fails to compile without one.
func WithAllocator(a Allocator) Option {
	return func(o *builderOptions) {
		o.allocator = a
	}
}

// WithLogger sets the logger of the builder and of the graphs it compiles,
// overriding the package logger set with SetLogger.
func WithLogger(l *slog.Logger) Option {
	return func(o *builderOptions) {
		o.logger = l
	}
}

// WithStrictResources makes the compiled graph panic when a declared
// resource cannot be resolved during execution, instead of skipping the
// pass. Use it in debug builds.
func WithStrictResources(strict bool) Option {
	return func(o *builderOptions) {
		o.strict = strict
	}
}
