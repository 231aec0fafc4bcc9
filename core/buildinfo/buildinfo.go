// Package buildinfo carries release metadata stamped by the linker.
package buildinfo

import "strings"

// Set at build time:
//
//	-X 'github.com/m3rciful/bitrixbot/core/buildinfo.Version=v1.2.3'
//	-X 'github.com/m3rciful/bitrixbot/core/buildinfo.Commit=abcdef0'
//	-X 'github.com/m3rciful/bitrixbot/core/buildinfo.Date=2025-08-30T12:00:00Z'
var (
	Version = "dev"
	Commit  = "local"
	Date    = ""
)

// String renders the version line printed by --version.
func String() string {
	var b strings.Builder
	b.WriteString(Version)
	b.WriteString(" (")
	b.WriteString(Commit)
	if Date != "" {
		b.WriteString(", ")
		b.WriteString(Date)
	}
	b.WriteString(")")
	return b.String()
}
