package worker

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/me/gowe/internal/execution"
	"github.com/me/gowe/pkg/cwl"
)

// StagerConfig holds configuration for all stager backends.
type StagerConfig struct {
	// StageOutMode specifies where outputs are staged:
	// - "local": return file:// URI in-place (no copy)
	// - "file:///path": copy to shared path
	// - "http://upload.example.com" or "https://...": upload via HTTP PUT/POST
	// - "s3": upload to the bucket/prefix configured in S3
	StageOutMode string

	// HTTP contains HTTP/HTTPS stager settings.
	HTTP execution.HTTPStagerConfig

	// S3 contains S3/S3-compatible object storage stager settings. Only
	// consulted when S3.Bucket is non-empty.
	S3 execution.S3StagerConfig

	// TLS contains TLS settings shared across worker and stagers.
	TLS TLSConfig
}

// CredentialSet holds authentication credentials for a host, keyed by
// hostname in HTTPStagerConfig.Credentials.
type CredentialSet = execution.CredentialSet

// buildStager assembles the worker's Stager: a local FileStager for
// file:// locations and StageOutMode "local"/"file://...", layered with an
// HTTPStager for http(s):// locations (whenever an upload path or
// credentials are configured) and an S3Stager for s3:// locations
// (whenever a bucket is configured). This mirrors execution.Engine's own
// CompositeStager wiring so the worker and the single-process cwl-runner
// path stage files identically.
func buildStager(stageOutMode string, cfg StagerConfig) (execution.Stager, error) {
	tlsCfg, err := cfg.TLS.BuildTLSConfig()
	if err != nil {
		return nil, fmt.Errorf("build tls config: %w", err)
	}

	fallbackMode := stageOutMode
	if fallbackMode == "" {
		fallbackMode = "local"
	}

	var fallback execution.Stager
	handlers := map[string]execution.Stager{}

	if scheme, _ := cwl.ParseLocationScheme(fallbackMode); scheme == cwl.SchemeHTTP || scheme == cwl.SchemeHTTPS {
		if cfg.HTTP.UploadPath == "" {
			cfg.HTTP.UploadPath = fallbackMode
		}
		fallbackMode = "local"
	} else if fallbackMode == "s3" {
		fallbackMode = "local"
	}

	fileStager := execution.NewFileStager(fallbackMode)
	handlers[cwl.SchemeFile] = fileStager
	fallback = fileStager

	if cfg.HTTP.UploadPath != "" || len(cfg.HTTP.Credentials) > 0 {
		httpStager := execution.NewHTTPStager(cfg.HTTP, tlsCfg)
		handlers[cwl.SchemeHTTP] = httpStager
		handlers[cwl.SchemeHTTPS] = httpStager
		if cfg.HTTP.UploadPath != "" {
			fallback = httpStager
		}
	}

	if cfg.S3.Bucket != "" {
		s3Stager, err := execution.NewS3Stager(context.Background(), cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("build s3 stager: %w", err)
		}
		handlers[cwl.SchemeS3] = s3Stager
		if stageOutMode == "s3" {
			fallback = s3Stager
		}
	}

	return execution.NewCompositeStager(handlers, fallback), nil
}

// TLSConfig contains TLS settings shared across worker-server communication
// and HTTPS stager operations.
type TLSConfig struct {
	// CACertPath is the path to a PEM-encoded CA certificate file.
	// When set, this CA is added to the trust pool for all HTTPS connections.
	CACertPath string

	// InsecureSkipVerify disables certificate verification.
	// WARNING: Only use for testing. Never enable in production.
	InsecureSkipVerify bool

	// certPool is the parsed CA pool (lazily initialized).
	certPool *x509.CertPool
}

// DefaultStagerConfig returns a StagerConfig with sensible defaults.
func DefaultStagerConfig() StagerConfig {
	return StagerConfig{
		StageOutMode: "local",
		HTTP: execution.HTTPStagerConfig{
			Timeout:      5 * time.Minute,
			MaxRetries:   3,
			RetryDelay:   1 * time.Second,
			UploadMethod: "PUT",
		},
	}
}

// BuildTLSConfig creates a *tls.Config from TLSConfig settings.
// Returns nil if no custom TLS configuration is needed.
func (c *TLSConfig) BuildTLSConfig() (*tls.Config, error) {
	if c.InsecureSkipVerify {
		return &tls.Config{InsecureSkipVerify: true}, nil
	}

	if c.CACertPath == "" {
		return nil, nil // Use system CA pool
	}

	// Load custom CA certificate.
	caCert, err := os.ReadFile(c.CACertPath)
	if err != nil {
		return nil, fmt.Errorf("read CA cert %s: %w", c.CACertPath, err)
	}

	// Create cert pool and add CA.
	certPool := x509.NewCertPool()
	if !certPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA cert %s", c.CACertPath)
	}

	c.certPool = certPool

	return &tls.Config{
		RootCAs: certPool,
	}, nil
}

// LoadCredentialsFile loads credentials from a JSON file.
// The file format is: {"hostname": {"type": "bearer", "token": "..."}, ...}
func LoadCredentialsFile(path string) (map[string]CredentialSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	var creds map[string]CredentialSet
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parse credentials file: %w", err)
	}

	return creds, nil
}
