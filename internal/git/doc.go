// Package git owns the backup repository: it clones the destination when absent and,
// after a run, stages every change, commits with a timestamped message and pushes.
//
// This package handles:
//   - Clone-if-absent, including initializing against an empty remote
//   - Change detection over new, modified and deleted files
//   - Commit and push with HTTP basic authentication
//   - Retry of transient push failures
//   - Classification of go-git errors into ClassifiedErrors
package git
