package handler

import (
	"net/http"
	"strings"
	"testing"

	"github.com/faucetdb/askdb/internal/schema"
)

func TestGetSchema_JSON(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/v1/shop/_schema", nil)
	assertStatus(t, rr, http.StatusOK)

	var sch schema.Schema
	decodeJSON(t, rr, &sch)

	customers, ok := sch.Table("customers")
	if !ok {
		t.Fatal("customers table missing")
	}
	for _, c := range customers.Columns {
		if c.Name == "email" {
			t.Error("sensitive column email should be hidden")
		}
	}
	view, ok := sch.Table("customer_names")
	if !ok {
		t.Fatal("customer_names view missing")
	}
	if view.Type != "view" {
		t.Errorf("customer_names type = %q, want view", view.Type)
	}
}

func TestGetSchema_Text(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/v1/shop/_schema?format=text", nil)
	assertStatus(t, rr, http.StatusOK)
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "customers") {
		t.Errorf("rendered schema missing customers:\n%s", body)
	}
	if strings.Contains(body, "email") {
		t.Errorf("rendered schema leaks email:\n%s", body)
	}
}

func TestGetSchema_Refresh(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/v1/shop/_schema", nil)
	assertStatus(t, rr, http.StatusOK)

	conn, err := env.catalog.Connector("shop")
	if err != nil {
		t.Fatalf("Connector: %v", err)
	}
	if _, err := conn.DB().Exec(`CREATE TABLE orders (id INTEGER PRIMARY KEY, total REAL)`); err != nil {
		t.Fatalf("create orders: %v", err)
	}

	// Cached copy does not see the new table.
	rr = env.do(t, http.MethodGet, "/api/v1/shop/_schema/orders", nil)
	assertStatus(t, rr, http.StatusNotFound)

	rr = env.do(t, http.MethodGet, "/api/v1/shop/_schema?refresh=true", nil)
	assertStatus(t, rr, http.StatusOK)

	rr = env.do(t, http.MethodGet, "/api/v1/shop/_schema/orders", nil)
	assertStatus(t, rr, http.StatusOK)
}

func TestGetTable(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/v1/shop/_schema/CUSTOMERS", nil)
	assertStatus(t, rr, http.StatusOK)

	var table schema.Table
	decodeJSON(t, rr, &table)
	if table.Name != "customers" {
		t.Errorf("name = %q, want customers", table.Name)
	}
	if len(table.Columns) != 2 {
		t.Errorf("columns = %d, want 2 (email hidden)", len(table.Columns))
	}

	rr = env.do(t, http.MethodGet, "/api/v1/shop/_schema/nope", nil)
	assertStatus(t, rr, http.StatusNotFound)
}

func TestGetSchema_UnknownService(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/v1/nope/_schema", nil)
	assertStatus(t, rr, http.StatusNotFound)
}
