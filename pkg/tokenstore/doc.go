// Package tokenstore provides boxauth.TokenStore implementations.
//
// Memory is a process-local store for tests and single-instance use. SQLite
// is a durable store backed by a shared database file, letting multiple
// processes coordinate refreshes of one credential.
package tokenstore
