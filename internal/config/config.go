// Package config loads the fabric's JSON configuration: a JSON document
// of nested sections overridable with environment variables, covering the
// broker/audit/auth/server shape this fabric needs.
package config

import (
	"encoding/json"
	"os"
)

// Config is the full process configuration for cmd/progressd.
type Config struct {
	Server struct {
		Host         string `json:"host"`
		Port         int    `json:"port"`
		ReadTimeout  int    `json:"readTimeout"`
		WriteTimeout int    `json:"writeTimeout"`
	} `json:"server"`

	Broker struct {
		// Backend selects the Backend implementation: "redis" or "nats".
		Backend string `json:"backend"`
		Redis   struct {
			Addr     string `json:"addr"`
			Password string `json:"password"`
			DB       int    `json:"db"`
		} `json:"redis"`
		NATS struct {
			URL    string `json:"url"`
			Bucket string `json:"bucket"`
		} `json:"nats"`
	} `json:"broker"`

	Audit struct {
		// Store selects the Store implementation: "postgres" or "memory".
		Store       string `json:"store"`
		PostgresDSN string `json:"postgresDsn"`
	} `json:"audit"`

	Auth struct {
		JWTSecret       string `json:"jwtSecret"`
		TokenExpiration int    `json:"tokenExpiration"`
		RequireAuth     bool   `json:"requireAuth"`
	} `json:"auth"`

	Metrics struct {
		EnablePrometheus bool `json:"enablePrometheus"`
		UpdateInterval   int  `json:"updateInterval"`
	} `json:"metrics"`
}

const defaultConfigJSON = `{
  "server": {
    "host": "0.0.0.0",
    "port": 8080,
    "readTimeout": 10,
    "writeTimeout": 10
  },
  "broker": {
    "backend": "redis",
    "redis": {
      "addr": "localhost:6379",
      "password": "",
      "db": 0
    },
    "nats": {
      "url": "nats://localhost:4222",
      "bucket": "progress_cache"
    }
  },
  "audit": {
    "store": "memory",
    "postgresDsn": ""
  },
  "auth": {
    "jwtSecret": "change-me-in-production",
    "tokenExpiration": 3600,
    "requireAuth": true
  },
  "metrics": {
    "enablePrometheus": true,
    "updateInterval": 5
  }
}`

// Load reads config from path, or the built-in default when path is
// empty, expands ${VAR} references, unmarshals it, and then applies
// direct environment variable overrides.
func Load(path string) (*Config, error) {
	var data []byte
	var err error

	if path != "" {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	} else {
		data = []byte(defaultConfigJSON)
	}

	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func expandEnvVars(raw string) string {
	return os.ExpandEnv(raw)
}

func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if backend := os.Getenv("BROKER_BACKEND"); backend != "" {
		cfg.Broker.Backend = backend
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Broker.Redis.Addr = addr
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		cfg.Broker.NATS.URL = url
	}
	if store := os.Getenv("AUDIT_STORE"); store != "" {
		cfg.Audit.Store = store
	}
	if dsn := os.Getenv("AUDIT_POSTGRES_DSN"); dsn != "" {
		cfg.Audit.PostgresDSN = dsn
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	switch os.Getenv("REQUIRE_AUTH") {
	case "true":
		cfg.Auth.RequireAuth = true
	case "false":
		cfg.Auth.RequireAuth = false
	}
}
