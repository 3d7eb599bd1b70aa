// Package retry implements the bounded exponential-backoff policy applied
// to every external call the pipeline makes. Classification of transient
// versus permanent errors is delegated to the services error taxonomy, not
// inferred from error text.
package retry
