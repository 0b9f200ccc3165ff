// Package sqlite provides the modernc.org/sqlite backed storage driver used
// by both the read-only node knowledge base (nodes.db) and the user-writable
// version store (data.db). It owns DSN construction, pragmas, embedded goose
// migrations, and the small JSON/text helpers the repositories share.
package sqlite
