package main

import (
	"flag"

	"github.com/danmuck/storefront/internal/config"
	"github.com/danmuck/storefront/internal/logging"
	"github.com/rs/zerolog/log"
)

func main() {
	output := flag.String("output", config.DefaultConfigPath, "output path for the config template")
	validate := flag.Bool("validate", false, "validate an existing config file instead of writing one")
	input := flag.String("input", "", "config path for validation (defaults to $"+config.EnvConfigPath+" or "+config.DefaultConfigPath+")")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	logging.ConfigureRuntime()

	if *validate {
		path := config.ResolvePath(*input)
		cfg, err := config.Load(path)
		if err != nil {
			log.Fatal().Err(err).Msg("config invalid")
		}
		log.Info().
			Str("path", path).
			Str("commerce", cfg.Commerce.BaseURL).
			Str("mutation_policy", string(cfg.Cart.MutationPolicy)).
			Msg("config valid")
		return
	}

	if err := config.WriteTemplate(*output, *force); err != nil {
		log.Fatal().Err(err).Msg("write config template")
	}
	log.Info().Str("path", *output).Msg("wrote config template")
}
