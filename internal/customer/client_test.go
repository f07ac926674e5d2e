package customer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
)

func TestClientLookup(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/customers/42":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":42,"name":"Jane Roe","email":"jane@example.com","phone":"9876543210","kycStatus":"VERIFIED","createdAt":"2024-01-02T03:04:05"}`))
		case "/api/customers/7":
			w.WriteHeader(http.StatusNotFound)
		case "/api/customers/8":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":8,"name":"No Mail"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	client, err := NewClient(server.URL + "/")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	details, err := client.Lookup(context.Background(), 42)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if details.Email != "jane@example.com" || details.Name != "Jane Roe" || details.Phone != "9876543210" {
		t.Fatalf("Lookup() = %+v", details)
	}

	if _, err := client.Lookup(context.Background(), 7); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Lookup(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := client.Lookup(context.Background(), 8); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Lookup(no email) error = %v, want ErrValidation", err)
	}
	if _, err := client.Lookup(context.Background(), 9); err == nil {
		t.Fatal("Lookup(server error) expected error")
	}
	if _, err := client.Lookup(context.Background(), 0); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Lookup(0) error = %v, want ErrValidation", err)
	}
}

func TestNewClientValidatesURL(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(""); err == nil {
		t.Fatal("expected error for empty url")
	}
	if _, err := NewClient("customers"); err == nil {
		t.Fatal("expected error for relative url")
	}
}
