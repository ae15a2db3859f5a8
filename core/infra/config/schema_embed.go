package config

import "embed"

const presetSchemaFile = "schema/preset.schema.json"

//go:embed schema/*.json
var configSchemaFS embed.FS
