package snowflake

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/faucetdb/askdb/internal/connector"
)

// testKey is shared; RSA generation dominates the package's test time.
var testKey = func() *rsa.PrivateKey {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	return key
}()

func writePEM(t *testing.T, blockType string, der []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rsa_key.p8")
	if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der}), 0600); err != nil {
		t.Fatalf("write PEM: %v", err)
	}
	return path
}

func pkcs8Path(t *testing.T) string {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(testKey)
	if err != nil {
		t.Fatalf("marshal PKCS8: %v", err)
	}
	return writePEM(t, "PRIVATE KEY", der)
}

func TestLoadPrivateKey(t *testing.T) {
	notPEM := filepath.Join(t.TempDir(), "key.txt")
	os.WriteFile(notPEM, []byte("-----not a key-----"), 0600)

	tests := []struct {
		name    string
		path    func(t *testing.T) string
		wantErr string
	}{
		{
			name: "PKCS1",
			path: func(t *testing.T) string {
				return writePEM(t, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(testKey))
			},
		},
		{name: "PKCS8", path: pkcs8Path},
		{
			name:    "missing file",
			path:    func(*testing.T) string { return "/nonexistent/rsa_key.p8" },
			wantErr: "read private key file",
		},
		{
			name:    "not PEM",
			path:    func(*testing.T) string { return notPEM },
			wantErr: "no PEM block",
		},
		{
			name:    "EC block",
			path:    func(t *testing.T) string { return writePEM(t, "EC PRIVATE KEY", []byte("x")) },
			wantErr: "unsupported PEM block type",
		},
		{
			name:    "corrupt PKCS8",
			path:    func(t *testing.T) string { return writePEM(t, "PRIVATE KEY", []byte("garbage")) },
			wantErr: "parse private key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := loadPrivateKey(tt.path(t))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("loadPrivateKey: %v", err)
			}
			if key.N.Cmp(testKey.N) != 0 {
				t.Error("loaded key modulus does not match")
			}
		})
	}
}

func TestBuildJWTDSN(t *testing.T) {
	keyPath := pkcs8Path(t)

	// user@account DSNs carry no password; key-pair auth must accept them.
	dsn, err := buildJWTDSN("reader@acme-analytics/SALES/PUBLIC?warehouse=REPORTING", keyPath)
	if err != nil {
		t.Fatalf("buildJWTDSN: %v", err)
	}
	if !strings.Contains(strings.ToLower(dsn), "authenticator=snowflake_jwt") {
		t.Errorf("DSN missing JWT authenticator: %s", dsn)
	}
	if !strings.Contains(dsn, "reader") {
		t.Errorf("DSN lost the user: %s", dsn)
	}
	if strings.Contains(dsn, ":_@") {
		t.Errorf("placeholder password leaked into DSN: %s", dsn)
	}
}

func TestBuildJWTDSN_Errors(t *testing.T) {
	keyPath := pkcs8Path(t)

	if _, err := buildJWTDSN(":::invalid", keyPath); err == nil {
		t.Error("expected error for invalid DSN")
	}
	if _, err := buildJWTDSN("reader@acme-analytics/SALES/PUBLIC", "/nonexistent/rsa_key.p8"); err == nil {
		t.Error("expected error for missing key file")
	}
}

func TestConnectorTraits(t *testing.T) {
	c := New()

	if c.DriverName() != "snowflake" || c.Dialect() != "Snowflake" {
		t.Errorf("DriverName/Dialect = %q/%q", c.DriverName(), c.Dialect())
	}
	if got := c.QuoteIdentifier(`Order "Lines"`); got != `"Order ""Lines"""` {
		t.Errorf("QuoteIdentifier = %s", got)
	}
	if c.SupportsReadOnlyTx() {
		t.Error("Snowflake has no read-only transactions")
	}

	err := c.Connect(connector.ConnectionConfig{
		Driver:         "snowflake",
		DSN:            "reader@acme-analytics/SALES",
		PrivateKeyPath: "/nonexistent/rsa_key.p8",
	})
	if err == nil || !strings.Contains(err.Error(), "snowflake jwt auth") {
		t.Errorf("Connect with a missing key = %v", err)
	}
}
