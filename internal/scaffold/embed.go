// Package scaffold embeds the starter files written by `auratriage init`:
// a stage override file and an environment template.
package scaffold

import "embed"

// FS holds the starter files under "files/".
//
//go:embed files
var FS embed.FS

// Root is the directory inside FS that holds the starter files.
const Root = "files"

// Targets maps each embedded file to the name it is installed under.
var Targets = map[string]string{
	"auratriage.yml": "auratriage.yml",
	"env.example":    ".env.example",
}
