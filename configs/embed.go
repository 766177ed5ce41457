// Package configs embeds the configuration templates synapstor ships
// with. Embedding keeps the templates available in binary distributions,
// not just source checkouts.
//
// The templates are written by `synapstor init`:
//   - synapstor.example.yaml becomes .synapstor.yaml in the project root
//   - user-config.example.yaml becomes ~/.config/synapstor/config.yaml
//
// Every setting ships commented out with its default, so a generated
// file changes nothing until the user uncomments lines. The load order
// is defaults, user config, project config, environment, flags.
package configs

import _ "embed"

// ProjectConfigTemplate is the version-controlled per-project template.
//
//go:embed synapstor.example.yaml
var ProjectConfigTemplate string

// UserConfigTemplate holds machine-level settings that apply to every
// project on the host.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string
