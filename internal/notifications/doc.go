// Package notifications sends run lifecycle push notifications via ntfy.
package notifications
