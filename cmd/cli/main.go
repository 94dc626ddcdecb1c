package main

import (
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/nimasrn/crm-campaigns/internal/auth"
	"github.com/nimasrn/crm-campaigns/internal/config"
	"github.com/nimasrn/crm-campaigns/migrations"
	"github.com/nimasrn/crm-campaigns/pkg/logger"
	"github.com/nimasrn/crm-campaigns/pkg/pg"
)

// usage:
//
//	cli migrate [--env=.env] [--dir=./migrations]
//	cli token --id=<id> --email=<email> [--name=<name>] [--role=admin|user]
func main() {
	err := config.Load(getEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	cmd := "migrate"
	if len(os.Args) > 1 && !strings.HasPrefix(os.Args[1], "--") {
		cmd = os.Args[1]
	}

	switch cmd {
	case "migrate":
		migrate()
	case "token":
		token()
	default:
		logger.Error("unknown command", "command", cmd)
		os.Exit(2)
	}
}

func migrate() {
	var fsys fs.FS = migrations.FS
	dir := "."
	if d := flagValue("dir"); d != "" {
		if _, err := os.Stat(d); err != nil {
			logger.Error("failed to open the migrations dir", "dir", d, "error", err)
			os.Exit(1)
		}
		fsys, dir = nil, d
	}

	if err := pg.Migrate(config.Get().PostgresWrite(), fsys, dir); err != nil {
		logger.Error("migration: error running migrations", "error", err)
		os.Exit(1)
	}
}

// token prints a signed session token, for local development.
func token() {
	cfg := config.Get()
	tokens, err := auth.New(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer, TTL: cfg.JWTTTL})
	if err != nil {
		logger.Error("token: auth is not configured", "error", err)
		os.Exit(1)
	}

	p := auth.Principal{
		ID:    flagValue("id"),
		Email: flagValue("email"),
		Name:  flagValue("name"),
		Role:  flagValue("role"),
	}
	raw, expires, err := tokens.Issue(p)
	if err != nil {
		logger.Error("token: issue failed", "error", err)
		os.Exit(1)
	}
	logger.Info("token issued", "id", p.ID, "expires_at", expires)
	fmt.Println(raw)
}

func flagValue(name string) string {
	prefix := "--" + name + "="
	for _, v := range os.Args[1:] {
		if strings.HasPrefix(v, prefix) {
			return strings.TrimPrefix(v, prefix)
		}
	}
	return ""
}

func getEnvPath() string {
	if p := flagValue("env"); p != "" {
		if _, err := os.Stat(p); err != nil {
			logger.Error("failed to open the passed env file, got error" + err.Error())
			return ""
		}
		return p
	}
	if _, err := os.Stat(".env"); err != nil {
		return ""
	}
	return ".env"
}
