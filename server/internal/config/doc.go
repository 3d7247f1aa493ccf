// Package config loads the server configuration from the `server:` section of
// a YAML file; the `agent:` key in the same file is ignored.
//
// Load applies defaults, unmarshals the YAML, applies APIBADGES_SERVER_*
// environment overrides and validates. Secrets (API key, webhook URLs) are
// never written in the file: the YAML names the environment variable that
// holds them.
package config
