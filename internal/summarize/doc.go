// Package summarize generates per-paper summaries and the narrated
// episode script through the Gemini generateContent API.
package summarize
