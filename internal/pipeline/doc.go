// Package pipeline orchestrates one episode run: collect papers, summarize
// them, synthesize audio, upload the artifact, and publish the catalog
// entry. Each stage runs under a retry policy and leaves an audit trail in
// the ledger.
package pipeline
