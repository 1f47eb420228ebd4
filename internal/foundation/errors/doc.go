// Package errors provides the classified error primitives used across tabbackup.
//
// Every error that crosses a package boundary carries a category, a severity and a
// retry strategy. The backup runner uses severity to decide whether a failure is
// recoverable for one artifact or fatal for the whole run, and the CLI adapter maps
// categories to process exit codes.
//
// Example usage:
//
//	err := errors.ExtractionError("no definition member in archive").
//		WithContext("artifact_id", id).
//		WithCause(zipErr).
//		Build()
package errors
