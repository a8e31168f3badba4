package main

import (
	"flag"
	"log"

	"github.com/danmuck/thermoctl/internal/config"
)

func main() {
	kind := flag.String("kind", "client", "config kind: client|sim")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing client config file")
	input := flag.String("input", "cmd/thermoctl/config.toml", "client config path for validation")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		if *kind != "client" {
			log.Fatalf("validate %s configs with thermosim -check", *kind)
		}
		if _, err := config.LoadClientConfig(*input); err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated client config at %s", *input)
		return
	}

	target := *output
	if target == "" {
		switch *kind {
		case "client":
			target = "cmd/thermoctl/config.toml"
		case "sim":
			target = "cmd/thermosim/config.toml"
		default:
			log.Fatalf("unknown kind: %s", *kind)
		}
	}

	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}
