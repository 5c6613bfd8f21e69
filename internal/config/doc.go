// Package config loads, normalizes, and validates Reelsmith configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// OPENAI_API_KEY and SUPABASE_URL. The Config type centralizes every knob the
// daemon and CLI need: database and storage backends, ffmpeg settings,
// generative provider credentials, and queue selection.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical backend names, and clear validation errors.
package config
