// Command papercast generates, publishes, and serves the daily papers
// podcast.
package main
