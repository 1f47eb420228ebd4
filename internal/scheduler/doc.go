// Package scheduler runs backups periodically and reloads configuration when the
// config file changes on disk.
package scheduler
