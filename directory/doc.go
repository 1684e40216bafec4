// Package directory holds implementations of the resolver's read model
// (types.Directory) together with the conversation lookup and the group store
// used by the balancer.
//
// Implementations:
//   - memory: in-process dataset, for tests, examples and small deployments
//   - sqlite: database/sql over modernc.org/sqlite with sqlx
//   - postgres: pgx connection pool
//
// The SQL adapters read a minimal table layout (see their schema files); they
// do not own the host application's schema.
package directory
