// Package templates embeds the default configuration and role prompt files.
package templates

import "embed"

//go:embed config.yaml prompts
var FS embed.FS
