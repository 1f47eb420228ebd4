// Package workspace owns the destination tree layout of a backup:
// <root>/<site>/<project>/<artifact files>.
//
// Directory creation goes through EnsureDir, which is idempotent and safe to call
// from concurrent workers; it is the only place that creates directories below the
// repository root.
package workspace
