// Package papersource selects the day's candidate papers from the
// Hugging Face daily papers feed.
package papersource
