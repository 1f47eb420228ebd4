// Package credentials resolves the two secrets a backup needs: the Tableau Server
// password and the git password.
//
// Secrets live in the OS keyring under a service namespace (TableauBackup by default),
// keyed by user name. A missing secret is prompted for once, without echo, and
// persisted; an explicit rotation prompts and overwrites. Secret values are never
// logged and render as [REDACTED] when formatted.
package credentials
