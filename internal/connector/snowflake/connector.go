package snowflake

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	gosnowflake "github.com/snowflakedb/gosnowflake"

	"github.com/faucetdb/askdb/internal/connector"
)

// SnowflakeConnector implements connector.Connector for Snowflake.
type SnowflakeConnector struct {
	connector.Base
}

// New creates a new SnowflakeConnector that introspects PUBLIC by default.
func New() connector.Connector {
	return &SnowflakeConnector{Base: connector.Base{SchemaName: "PUBLIC"}}
}

// Connect opens a gosnowflake pool. When PrivateKeyPath is set the DSN is
// rewritten for key-pair (JWT) authentication; the key must be a PEM
// encoded RSA key in PKCS#1 or PKCS#8 form.
func (c *SnowflakeConnector) Connect(cfg connector.ConnectionConfig) error {
	dsn := cfg.DSN
	if cfg.PrivateKeyPath != "" {
		var err error
		dsn, err = buildJWTDSN(cfg.DSN, cfg.PrivateKeyPath)
		if err != nil {
			return fmt.Errorf("snowflake jwt auth: %w", err)
		}
	}
	return c.Open("snowflake", dsn, cfg)
}

// DriverName returns the driver identifier for Snowflake.
func (c *SnowflakeConnector) DriverName() string { return "snowflake" }

// Dialect names Snowflake SQL in the model prompt.
func (c *SnowflakeConnector) Dialect() string { return "Snowflake" }

// QuoteIdentifier wraps a SQL identifier in double quotes. Quoted
// Snowflake identifiers are case-sensitive.
func (c *SnowflakeConnector) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// SupportsReadOnlyTx is false; use a role with SELECT-only grants.
func (c *SnowflakeConnector) SupportsReadOnlyTx() bool { return false }

// buildJWTDSN parses dsn, attaches the private key at keyPath and
// re-serializes it with the JWT authenticator.
func buildJWTDSN(dsn, keyPath string) (string, error) {
	// ParseDSN insists on a password even for JWT auth, so a
	// user@account DSN gets a placeholder that is cleared afterwards.
	sfConfig, err := gosnowflake.ParseDSN(dsn)
	if err != nil && strings.Contains(err.Error(), "password is empty") {
		if idx := strings.Index(dsn, "@"); idx > 0 && !strings.Contains(dsn[:idx], ":") {
			dsn = dsn[:idx] + ":_" + dsn[idx:]
		}
		sfConfig, err = gosnowflake.ParseDSN(dsn)
	}
	if err != nil {
		return "", fmt.Errorf("parse DSN: %w", err)
	}
	sfConfig.Password = ""

	privKey, err := loadPrivateKey(keyPath)
	if err != nil {
		return "", err
	}
	sfConfig.Authenticator = gosnowflake.AuthTypeJwt
	sfConfig.PrivateKey = privKey

	newDSN, err := gosnowflake.DSN(sfConfig)
	if err != nil {
		return "", fmt.Errorf("rebuild DSN: %w", err)
	}
	return newDSN, nil
}

// loadPrivateKey reads an unencrypted PEM RSA private key.
func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key file %q: %w", path, err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %q", path)
	}

	var key any
	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	default:
		return nil, fmt.Errorf("unsupported PEM block type %q (expected RSA PRIVATE KEY or PRIVATE KEY)", block.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA (got %T)", key)
	}
	return rsaKey, nil
}
