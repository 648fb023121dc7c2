// Package cache provides a small generic LRU cache with eviction callbacks.
//
// The renderer keeps compiled graphs and compiled shader modules in it.
// Evicted values are handed to the OnEvict callback so that GPU-backed
// values can be released on the frame timeline instead of leaking:
//
//	c := cache.New[string, *graph.Compiled](8)
//	c.OnEvict(func(key string, g *graph.Compiled) { g.Release(frame) })
//	g, err := c.GetOrCreate("main", build)
//
// Cache is safe for concurrent use and must not be copied after creation.
package cache
