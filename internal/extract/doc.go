// Package extract turns a downloaded artifact into exactly one canonically named
// definition file.
//
// Compound downloads (.twbx, .tdsx) are zip archives carrying one definition member
// (.twb, .tds) next to extracts and images; only that member is kept. Bare downloads
// are renamed in place. The canonical name is <sanitized base>_<artifact id>.<ext>,
// so repeated runs overwrite the same file.
package extract
