// Package configs provides the embedded configuration template for
// memclawz. The template is embedded at build time with go:embed so it is
// available in every distribution, and is written out by
// 'memclawz config init'.
package configs

import _ "embed"

// ConfigTemplate is the commented example configuration written by
// 'memclawz config init'.
//
//go:embed config.example.yaml
var ConfigTemplate string
