// Package config provides configuration management for the gateway.
// Configuration is loaded once at startup from a YAML file with
// ${VAR} and ${VAR:-default} environment variable substitution.
package config

import (
	"fmt"
	"time"
)

// minSecretLength is the minimum length of the token signing secret.
// HMAC-SHA256 requires at least a 256-bit key.
const minSecretLength = 32

// Config holds all configuration settings for the gateway.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Log            LogConfig            `yaml:"log"`
	Metrics        MetricsConfig        `yaml:"metrics"`
	JWT            JWTConfig            `yaml:"jwt"`
	Revocation     RevocationConfig     `yaml:"revocation"`
	RateLimit      RateLimitConfig      `yaml:"rateLimit"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
	Backends       []BackendConfig      `yaml:"backends"`
	Routes         []RouteConfig        `yaml:"routes"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout"`
	IdleTimeout     Duration `yaml:"idleTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig holds metrics server settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// JWTConfig holds token signing settings.
type JWTConfig struct {
	Secret string   `yaml:"secret"`
	Issuer string   `yaml:"issuer"`
	TTL    Duration `yaml:"ttl"`
}

// RevocationConfig holds revocation store settings.
type RevocationConfig struct {
	// Store selects the backing store: "memory" or "redis".
	Store         string      `yaml:"store"`
	SweepInterval Duration    `yaml:"sweepInterval"`
	Redis         RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings for the revocation store.
type RedisConfig struct {
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"keyPrefix"`
}

// RateLimitConfig holds per-client rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// CircuitBreakerConfig holds circuit breaker settings for
// gateway-initiated backend calls.
type CircuitBreakerConfig struct {
	MaxFailures      int      `yaml:"maxFailures"`
	CoolDown         Duration `yaml:"coolDown"`
	HalfOpenMax      int      `yaml:"halfOpenMax"`
	SuccessThreshold int      `yaml:"successThreshold"`
	FailureRatio     float64  `yaml:"failureRatio"`
	MinRequests      int      `yaml:"minRequests"`
	SamplingWindow   Duration `yaml:"samplingWindow"`
}

// BackendConfig describes a backend service reachable from the gateway.
type BackendConfig struct {
	Name    string   `yaml:"name"`
	URL     string   `yaml:"url"`
	Timeout Duration `yaml:"timeout"`
}

// RouteConfig describes a single route rule. Rules are evaluated in
// declaration order; the first matching rule wins.
type RouteConfig struct {
	ID string `yaml:"id"`

	// Path is a regular expression matched against the request path.
	// A (?P<remaining>...) capture group feeds the rewrite template.
	Path string `yaml:"path"`

	// Methods restricts the rule to the listed HTTP methods.
	// An empty list matches any method.
	Methods []string `yaml:"methods"`

	// Middlewares lists the per-route filters to run, in order.
	// Known names: "auth", "auth-optional", "admin".
	Middlewares []string `yaml:"middlewares"`

	// Backend names the target service. "local" routes to the
	// gateway's own auth endpoints.
	Backend string `yaml:"backend"`

	// Rewrite is the path rewrite template, e.g. "/${remaining}".
	// Empty means the path is forwarded unchanged.
	Rewrite string `yaml:"rewrite"`

	// Headers are static headers injected into the outgoing request.
	Headers map[string]string `yaml:"headers"`
}

// Validate checks the configuration and applies defaults.
func (c *Config) Validate() error {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = Duration(30 * time.Second)
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = Duration(30 * time.Second)
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = Duration(120 * time.Second)
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(15 * time.Second)
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	if c.Metrics.Port == 0 {
		c.Metrics.Port = 9090
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if len(c.JWT.Secret) < minSecretLength {
		return fmt.Errorf("jwt.secret must be at least %d bytes", minSecretLength)
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "gateway"
	}
	if c.JWT.TTL == 0 {
		c.JWT.TTL = Duration(24 * time.Hour)
	}

	switch c.Revocation.Store {
	case "":
		c.Revocation.Store = "memory"
	case "memory", "redis":
	default:
		return fmt.Errorf("revocation.store must be \"memory\" or \"redis\", got %q", c.Revocation.Store)
	}
	if c.Revocation.Store == "redis" && c.Revocation.Redis.Address == "" {
		return fmt.Errorf("revocation.redis.address is required for the redis store")
	}
	if c.Revocation.SweepInterval == 0 {
		c.Revocation.SweepInterval = Duration(time.Hour)
	}
	if c.Revocation.Redis.KeyPrefix == "" {
		c.Revocation.Redis.KeyPrefix = "gateway:revocation:"
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerSecond <= 0 {
			c.RateLimit.RequestsPerSecond = 100
		}
		if c.RateLimit.Burst <= 0 {
			c.RateLimit.Burst = int(c.RateLimit.RequestsPerSecond)
		}
	}

	if c.CircuitBreaker.MaxFailures < 1 {
		c.CircuitBreaker.MaxFailures = 5
	}
	if c.CircuitBreaker.CoolDown < Duration(time.Millisecond) {
		c.CircuitBreaker.CoolDown = Duration(30 * time.Second)
	}
	if c.CircuitBreaker.HalfOpenMax < 1 {
		c.CircuitBreaker.HalfOpenMax = 1
	}
	if c.CircuitBreaker.SuccessThreshold < 1 {
		c.CircuitBreaker.SuccessThreshold = 1
	}
	if c.CircuitBreaker.FailureRatio < 0 || c.CircuitBreaker.FailureRatio > 1 {
		c.CircuitBreaker.FailureRatio = 0
	}
	if c.CircuitBreaker.MinRequests < 1 {
		c.CircuitBreaker.MinRequests = 10
	}
	if c.CircuitBreaker.SamplingWindow < Duration(time.Second) {
		c.CircuitBreaker.SamplingWindow = Duration(time.Minute)
	}

	names := make(map[string]bool, len(c.Backends))
	for i := range c.Backends {
		b := &c.Backends[i]
		if b.Name == "" {
			return fmt.Errorf("backends[%d]: name is required", i)
		}
		if names[b.Name] {
			return fmt.Errorf("duplicate backend name: %s", b.Name)
		}
		names[b.Name] = true
		if b.URL == "" {
			return fmt.Errorf("backend %s: url is required", b.Name)
		}
		if b.Timeout == 0 {
			b.Timeout = Duration(10 * time.Second)
		}
	}

	if len(c.Routes) == 0 {
		return fmt.Errorf("at least one route is required")
	}
	ids := make(map[string]bool, len(c.Routes))
	for i := range c.Routes {
		r := &c.Routes[i]
		if r.ID == "" {
			return fmt.Errorf("routes[%d]: id is required", i)
		}
		if ids[r.ID] {
			return fmt.Errorf("duplicate route id: %s", r.ID)
		}
		ids[r.ID] = true
		if r.Path == "" {
			return fmt.Errorf("route %s: path is required", r.ID)
		}
		if r.Backend == "" {
			return fmt.Errorf("route %s: backend is required", r.ID)
		}
		if r.Backend != "local" && !names[r.Backend] {
			return fmt.Errorf("route %s: unknown backend %q", r.ID, r.Backend)
		}
	}

	return nil
}
