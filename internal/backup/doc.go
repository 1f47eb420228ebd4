// Package backup runs one backup: it resolves credentials, makes sure the working
// tree exists, computes the change window, walks every site and artifact kind on the
// server, and finally commits and pushes the result.
//
// Per-artifact download and extraction failures are logged and counted as skipped;
// the run continues and still commits. Sign-in and page-fetch failures abort the run
// before anything is committed.
package backup
