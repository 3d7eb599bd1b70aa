// Package services provides the shared error taxonomy and context plumbing
// used by pipeline stages and external-service adapters. Errors are tagged
// with sentinel markers so the retry policy can classify transient versus
// permanent failures without inspecting error text.
package services
