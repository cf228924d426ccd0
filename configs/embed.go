// Package configs embeds the configuration template written by
// `rowsearch init`. Edit rowsearch.example.yaml and rebuild to change it.
package configs

import _ "embed"

// ConfigTemplate is a commented rowsearch.yaml for a PostgreSQL source.
//
//go:embed rowsearch.example.yaml
var ConfigTemplate string
