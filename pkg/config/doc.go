// Package config loads typed configuration from environment variables.
//
// Structs declare their variables with caarlos0/env tags. Load reads an
// optional .env file once, parses each struct type once and caches the result,
// so packages can call it freely during start-up:
//
//	var stripeCfg subscription.StripeConfig
//	config.MustLoad(&stripeCfg)
//
// A failed parse is cached as well: fix the environment and restart.
package config
