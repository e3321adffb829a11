// Package catalog manages the shade and scene catalog for shadecore.
//
// The catalog is the source of truth for which shades exist, which RF
// remote codes drive them, and which named scenes group them. It follows
// a layered design:
//
//   - Repository: persistence interface with a SQLite implementation
//   - Registry: cached, thread-safe facade over a Repository
//
// The Registry caches all shades and scenes in memory, populated at
// startup via RefreshCache and kept in sync by the CRUD operations. The
// dispatch hot path reads only from the cache; the database is touched
// on mutation.
//
// All lookups return deep copies so callers can never mutate cached
// entries.
package catalog
