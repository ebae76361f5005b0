// Package config provides configuration structures and utilities for
// siteindex. It defines crawl settings, the YAML configuration file with
// its per-host overrides, and the default database location.
package config
