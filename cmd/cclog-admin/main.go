// Package main provides an operator CLI for the session sharing service.
// It mints admin bearer tokens, drives the admin API and uploads session logs.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/jsamuelsen11/cclog-share/internal/client"
	"github.com/jsamuelsen11/cclog-share/internal/config"
	"github.com/jsamuelsen11/cclog-share/internal/token"
	"github.com/jsamuelsen11/cclog-share/pkg/logger"
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:8721", "Service base URL")
		action   = flag.String("action", "status", "Action to perform: token, status, sessions, invalidate, upload")
		file     = flag.String("file", "", "JSONL session file for upload")
		subject  = flag.String("subject", "operator", "Subject of minted admin tokens")
		ttl      = flag.Duration("ttl", time.Hour, "Lifetime of minted admin tokens")
		bearer   = flag.String("token", "", "Admin bearer token (minted from ADMIN_JWT_SECRET when empty)")
		timeout  = flag.Duration("timeout", 2*time.Minute, "HTTP request timeout")
		logLevel = flag.String("log-level", "warn", "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	ctx := context.Background()
	api := client.NewClient(*baseURL, *timeout, logger.New(*logLevel, "text", "stderr"))

	switch *action {
	case "token":
		signed, err := mintToken(*subject, *ttl)
		if err != nil {
			fail("Error minting token", err)
		}
		fmt.Println(signed)
	case "status":
		admin, err := withAdminToken(api, *bearer, *subject, *ttl)
		if err != nil {
			fail("Error preparing admin client", err)
		}
		status, err := admin.GenerationStatus(ctx)
		if err != nil {
			fail("Error reading generation status", err)
		}
		printJSON(status)
	case "sessions":
		admin, err := withAdminToken(api, *bearer, *subject, *ttl)
		if err != nil {
			fail("Error preparing admin client", err)
		}
		stats, err := admin.SessionStats(ctx)
		if err != nil {
			fail("Error reading session statistics", err)
		}
		printJSON(stats)
	case "invalidate":
		admin, err := withAdminToken(api, *bearer, *subject, *ttl)
		if err != nil {
			fail("Error preparing admin client", err)
		}
		result, err := admin.Invalidate(ctx)
		if err != nil {
			fail("Error invalidating generation", err)
		}
		printJSON(result)
	case "upload":
		if *file == "" {
			fmt.Fprintf(os.Stderr, "File is required for upload\n")
			os.Exit(1)
		}
		// #nosec G304 -- operator supplied path.
		content, err := os.ReadFile(*file)
		if err != nil {
			fail("Error reading session file", err)
		}
		result, err := api.Upload(ctx, filepath.Base(*file), content)
		if client.IsRateLimited(err) {
			fail("Upload rate limited, try again later", err)
		}
		if err != nil {
			fail("Error uploading session", err)
		}
		fmt.Println(result.URL)
	default:
		fmt.Fprintf(os.Stderr, "Unknown action: %s\n", *action)
		os.Exit(1)
	}
}

// mintToken signs an admin token with the secret from ADMIN_* variables.
func mintToken(subject string, ttl time.Duration) (string, error) {
	var adminCfg config.AdminConfig
	if err := envconfig.Process("ADMIN", &adminCfg); err != nil {
		return "", fmt.Errorf("failed to load admin configuration: %w", err)
	}
	if adminCfg.JWTSecret == "" {
		return "", errors.New("ADMIN_JWT_SECRET is not set")
	}
	return token.NewJWTService(&adminCfg).GenerateAdminToken(subject, ttl)
}

func withAdminToken(api *client.Client, bearer, subject string, ttl time.Duration) (*client.Client, error) {
	if bearer == "" {
		minted, err := mintToken(subject, ttl)
		if err != nil {
			return nil, err
		}
		bearer = minted
	}
	return api.WithToken(bearer), nil
}

func fail(msg string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting response: %v\n", err)
		return
	}
	fmt.Println(string(out))
}
