// Package catalog is the read side of the episode store: a TTL-cached
// repository that serves only completed episodes.
package catalog
