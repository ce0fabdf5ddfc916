// Package config provides configuration management for the download client.
//
// This package handles:
//   - Loading and saving settings from JSON files
//   - Default configuration values
//   - VASSET_* environment overrides
//   - Conversion to the progress channel's Backoff
//
// # Default Settings
//
//	settings := config.DefaultSettings()
//	// Talks to http://localhost:8080
//	// Saves files to ~/Downloads/vasset
//	// Reconnects after 1s, 2s, 4s, ... up to 30s, 5 attempts
//
// # Loading from File
//
//	settings, err := config.Load("/path/to/config.json")
//	if err != nil {
//	    // Uses defaults if file doesn't exist
//	}
//
// # Environment
//
// Every JSON key has an upper-case environment twin with the VASSET_
// prefix; for example VASSET_API_BASE_URL overrides api_base_url.
package config
