// Package cache provides the Redis-backed score cache used by the
// routing scorers. This package is internal and should not be imported
// by external projects.
package cache
