package ruleset

import (
	_ "embed"

	"github.com/macropower/checkit/pkg/schema"
)

//go:generate go run ../../internal/schemagen/ruleset -o ruleset.v1.json

// SchemaData is the generated JSON schema for rule documents.
//
//go:embed ruleset.v1.json
var SchemaData []byte

const schemaURL = "https://raw.githubusercontent.com/macropower/checkit/refs/heads/main/pkg/ruleset/ruleset.v1.json"

// DefaultValidator validates decoded rule documents against [SchemaData].
var DefaultValidator = schema.MustNewValidator(schemaURL, SchemaData)
