package config

import (
	_ "embed"

	"github.com/macropower/checkit/pkg/schema"
)

//go:generate go run ../../internal/schemagen/config -o config.v1.json

// SchemaData is the generated JSON schema for the tool configuration.
//
//go:embed config.v1.json
var SchemaData []byte

const schemaURL = "https://raw.githubusercontent.com/macropower/checkit/refs/heads/main/pkg/config/config.v1.json"

// DefaultValidator validates decoded configuration against [SchemaData].
var DefaultValidator = schema.MustNewValidator(schemaURL, SchemaData)
