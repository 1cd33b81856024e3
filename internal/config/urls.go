package config

import "strings"

// ViewURL returns the shareable link for a session.
//
// Example usage:
//
//	cfg, _ := config.Load()
//	link := cfg.ViewURL(id.String())
func (c *Config) ViewURL(id string) string {
	return strings.TrimRight(c.Server.BaseURL, "/") + "/view/" + id
}
