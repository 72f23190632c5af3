// Package state provides filesystem-backed storage for client-side
// configuration that outlives a single run, such as scheduled sessions.
package state
