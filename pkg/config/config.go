package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Microsoft Graph Command Line Tools public client.
	DefaultClientID = "14d82eec-204b-4c2f-b7e8-296a70dab67e"
	DefaultRepoBase = "https://raw.githubusercontent.com/m365prov/artifacts"
)

type Config struct {
	Env string

	// Identity
	TenantID string // tenant id or domain; "organizations" signs in to the home tenant
	ClientID string
	AuthMode string // browser | device

	// Remote artifact source: {RepoBase}/{Branch}/{path}
	RepoBase   string
	Branch     string // main (default channel) | test
	VerifyMode string // off | sha256 | jws
	TrustJWKS  string // path to a JWK set trusted for jws verification

	// Artifact cache
	CacheBackend string // lru | redis
	CacheSize    int
	RedisURL     string

	// Run journal
	DatabaseURL string

	ScopePolicy string // exact | subset
	PolicyFile  string // optional rego guard module

	StatusAddr  string // optional localhost status/metrics endpoint
	HTTPTimeout time.Duration

	GraphBaseURL    string
	ExchangeBaseURL string

	LogFile string
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:             env("M365_ENV", "dev"),
		TenantID:        env("M365_TENANT_ID", "organizations"),
		ClientID:        env("M365_CLIENT_ID", DefaultClientID),
		AuthMode:        strings.ToLower(env("M365_AUTH_MODE", "browser")),
		RepoBase:        strings.TrimRight(env("M365_REPO_BASE", DefaultRepoBase), "/"),
		Branch:          env("M365_BRANCH", "main"),
		VerifyMode:      strings.ToLower(env("M365_VERIFY", "sha256")),
		TrustJWKS:       env("M365_TRUST_JWKS", ""),
		CacheBackend:    strings.ToLower(env("M365_CACHE", "lru")),
		CacheSize:       envInt("M365_CACHE_SIZE", 256),
		RedisURL:        env("REDIS_URL", ""),
		DatabaseURL:     env("DATABASE_URL", ""),
		ScopePolicy:     strings.ToLower(env("M365_SCOPE_POLICY", "exact")),
		PolicyFile:      env("M365_POLICY_FILE", ""),
		StatusAddr:      env("M365_STATUS_ADDR", ""),
		HTTPTimeout:     envDur("M365_HTTP_TIMEOUT_SEC", 60) * time.Second,
		GraphBaseURL:    strings.TrimRight(env("GRAPH_BASE_URL", "https://graph.microsoft.com"), "/"),
		ExchangeBaseURL: strings.TrimRight(env("EXCHANGE_BASE_URL", "https://outlook.office365.com"), "/"),
		LogFile:         env("LOG_FILE", ""),
	}
	if cfg.CacheBackend == "redis" && cfg.RedisURL == "" {
		log.Println("[WARN] M365_CACHE=redis but REDIS_URL not set - falling back to in-process cache")
		cfg.CacheBackend = "lru"
	}
	if cfg.VerifyMode == "jws" && cfg.TrustJWKS == "" {
		log.Println("[WARN] M365_VERIFY=jws requires M365_TRUST_JWKS - every artifact will be rejected")
	}
	return cfg
}

// Channel reports whether the configured branch is the test channel.
func (c Config) Channel() string {
	if c.Branch == "main" || c.Branch == "" {
		return "default"
	}
	return "test"
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
func envDur(k string, def int) time.Duration {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return time.Duration(i)
		}
	}
	return time.Duration(def)
}
