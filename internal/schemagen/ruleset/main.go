// Command schemagen/ruleset regenerates the rule document JSON schema.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/invopop/jsonschema"

	"github.com/macropower/checkit/pkg/ruleset"
)

var outFile = flag.String("o", "ruleset.v1.json", "Output file for the generated schema")

func main() {
	flag.Parse()

	r := &jsonschema.Reflector{}

	err := r.AddGoComments("github.com/macropower/checkit", "./pkg/ruleset")
	if err != nil {
		log.Fatalf("add go comments: %v", err)
	}

	s := r.Reflect(&ruleset.RuleSet{})

	jsData, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		log.Fatalf("generate JSON schema: %v", err)
	}

	err = os.WriteFile(*outFile, append(jsData, '\n'), 0o600)
	if err != nil {
		log.Fatalf("write schema file: %v", err)
	}
}
