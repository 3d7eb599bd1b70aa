// Package ledger records the stage-by-stage audit trail of pipeline runs.
// One entry exists per (run, stage); retries increment a counter on the
// same logical entry instead of appending duplicates.
package ledger
