// Package redisutil builds redis clients from a URL plus TLS and cluster
// settings taken from the environment.
package redisutil

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	envTLSCA         = "REDIS_TLS_CA"
	envTLSCert       = "REDIS_TLS_CERT"
	envTLSKey        = "REDIS_TLS_KEY"
	envTLSInsecure   = "REDIS_TLS_INSECURE"
	envTLSServerName = "REDIS_TLS_SERVER_NAME"
	envClusterAddrs  = "REDIS_CLUSTER_ADDRESSES"
)

// TLSSettings are the optional TLS knobs read from the environment.
type TLSSettings struct {
	CAPath     string
	CertPath   string
	KeyPath    string
	ServerName string
	Insecure   bool
}

// TLSSettingsFromEnv reads REDIS_TLS_* variables.
func TLSSettingsFromEnv() TLSSettings {
	return TLSSettings{
		CAPath:     strings.TrimSpace(os.Getenv(envTLSCA)),
		CertPath:   strings.TrimSpace(os.Getenv(envTLSCert)),
		KeyPath:    strings.TrimSpace(os.Getenv(envTLSKey)),
		ServerName: strings.TrimSpace(os.Getenv(envTLSServerName)),
		Insecure:   envBool(envTLSInsecure),
	}
}

func (s TLSSettings) empty() bool {
	return s.CAPath == "" && s.CertPath == "" && s.KeyPath == "" && s.ServerName == "" && !s.Insecure
}

// Apply layers the settings over base. It returns base unchanged when no
// setting is present.
func (s TLSSettings) Apply(base *tls.Config) (*tls.Config, error) {
	if s.empty() {
		return base, nil
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if base != nil {
		cfg = base.Clone()
	}
	if s.ServerName != "" {
		cfg.ServerName = s.ServerName
	}
	if s.Insecure {
		cfg.InsecureSkipVerify = true
	}
	if s.CAPath != "" {
		pem, err := os.ReadFile(s.CAPath)
		if err != nil {
			return nil, fmt.Errorf("redis tls ca read: %w", err)
		}
		pool := cfg.RootCAs
		if pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("redis tls ca parse: %s", s.CAPath)
		}
		cfg.RootCAs = pool
	}
	if s.CertPath != "" || s.KeyPath != "" {
		if s.CertPath == "" || s.KeyPath == "" {
			return nil, fmt.Errorf("redis tls cert/key must be set together")
		}
		cert, err := tls.LoadX509KeyPair(s.CertPath, s.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("redis tls keypair: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

// ParseOptions parses a redis URL and applies environment TLS settings.
func ParseOptions(url string) (*redis.Options, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	tlsConfig, err := TLSSettingsFromEnv().Apply(opts.TLSConfig)
	if err != nil {
		return nil, err
	}
	opts.TLSConfig = tlsConfig
	return opts, nil
}

// NewClient returns a universal client. REDIS_CLUSTER_ADDRESSES switches it
// to cluster mode.
func NewClient(url string) (redis.UniversalClient, error) {
	opts, err := ParseOptions(url)
	if err != nil {
		return nil, err
	}
	addrs := splitAddrs(os.Getenv(envClusterAddrs))
	if len(addrs) == 0 {
		addrs = []string{opts.Addr}
	}
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:     addrs,
		Username:  opts.Username,
		Password:  opts.Password,
		DB:        opts.DB,
		TLSConfig: opts.TLSConfig,
	}), nil
}

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func splitAddrs(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
	if len(fields) == 0 {
		return nil
	}
	return fields
}
