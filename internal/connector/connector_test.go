package connector

import "testing"

func TestSanitizeDSN(t *testing.T) {
	tests := []struct {
		name   string
		driver string
		in     string
		want   string
	}{
		{"postgres special chars", "postgres", "postgres://app:p#ss%w@db:5432/shop?sslmode=disable", "postgres://app:p%23ss%25w@db:5432/shop?sslmode=disable"},
		{"postgres already encoded", "postgres", "postgres://app:p%23ss@db/shop", "postgres://app:p%23ss@db/shop"},
		{"oracle", "oracle", "oracle://scott:ti#ger@db:1521/XE", "oracle://scott:ti%23ger@db:1521/XE"},
		{"not a url", "postgres", "host=db user=app", "host=db user=app"},
		{"mysql bare host", "mysql", "app:secret@db:3306/shop", "app:secret@tcp(db:3306)/shop"},
		{"mysql paren host", "mysql", "app:secret@(db:3306)/shop", "app:secret@tcp(db:3306)/shop"},
		{"sqlite untouched", "sqlite", "file:shop.db?mode=ro", "file:shop.db?mode=ro"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeDSN(tt.driver, tt.in); got != tt.want {
				t.Errorf("SanitizeDSN(%q, %q) = %q, want %q", tt.driver, tt.in, got, tt.want)
			}
		})
	}
}

func TestRedactDSN(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"postgres://app:s3cret@db:5432/shop", "postgres://app:xxxxx@db:5432/shop"},
		{"postgres://app@db/shop", "postgres://app@db/shop"},
		{"/var/data/shop.db", "/var/data/shop.db"},
	}
	for _, tt := range tests {
		if got := RedactDSN(tt.in); got != tt.want {
			t.Errorf("RedactDSN(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
