// Package config handles configuration loading for coven-deck.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable
// expansion. The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from COVEN_DECK_CONFIG environment variable
//  2. ~/.config/coven/deck.yaml (XDG_CONFIG_HOME respected)
//
// # Sections
//
// Identity provider (remote service or local user database):
//
//	identity:
//	  mode: "remote"                       # remote, local
//	  url: "https://id.example.com/auth/v1"
//	  api_key: "${DECK_API_KEY}"
//	  jwt_secret: "${DECK_JWT_SECRET}"     # local mode only
//
// Message backend and database:
//
//	api:
//	  url: "https://chat.example.com"
//	database:
//	  path: "~/.local/share/coven/deck.db"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
