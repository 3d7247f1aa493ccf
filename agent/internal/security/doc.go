// Package security inspects the TLS certificate presented by https targets.
package security
