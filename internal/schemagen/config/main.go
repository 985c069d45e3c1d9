// Command schemagen/config regenerates the tool configuration JSON schema.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/invopop/jsonschema"

	"github.com/macropower/checkit/pkg/config"
)

var outFile = flag.String("o", "config.v1.json", "Output file for the generated schema")

func main() {
	flag.Parse()

	r := &jsonschema.Reflector{}

	err := r.AddGoComments("github.com/macropower/checkit", "./pkg/config")
	if err != nil {
		log.Fatalf("add go comments: %v", err)
	}

	s := r.Reflect(&config.Config{})

	jsData, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		log.Fatalf("generate JSON schema: %v", err)
	}

	err = os.WriteFile(*outFile, append(jsData, '\n'), 0o600)
	if err != nil {
		log.Fatalf("write schema file: %v", err)
	}
}
