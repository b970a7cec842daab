package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("MySecurePassword123")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=1,p=4$") {
		t.Errorf("unexpected hash format: %s", hash)
	}

	again, err := HashPassword("MySecurePassword123")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == again {
		t.Error("two hashes of the same password are identical; salt not random")
	}
}

func TestVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	tests := []struct {
		name     string
		password string
		hash     string
		want     bool
		wantErr  bool
	}{
		{name: "correct password", password: "correct horse", hash: hash, want: true},
		{name: "wrong password", password: "battery staple", hash: hash},
		{name: "empty password", password: "", hash: hash},
		{name: "not argon2id", password: "x", hash: "$2a$10$abcdefghijklmnopqrstuv", wantErr: true},
		{name: "bad parameters", password: "x", hash: "$argon2id$v=19$m=x,t=1,p=4$c2FsdA$aGFzaA", wantErr: true},
		{name: "bad salt", password: "x", hash: "$argon2id$v=19$m=65536,t=1,p=4$!!!$aGFzaA", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := VerifyPassword(tt.password, tt.hash)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidHash) {
					t.Fatalf("error = %v, want ErrInvalidHash", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("VerifyPassword: %v", err)
			}
			if got != tt.want {
				t.Errorf("VerifyPassword = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBasicAuth(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := BasicAuth("eventsched", "admin", hash, "/health")(ok)

	tests := []struct {
		name       string
		path       string
		user, pass string
		setAuth    bool
		want       int
	}{
		{name: "health is open", path: "/health", want: http.StatusOK},
		{name: "no credentials", path: "/api/events", want: http.StatusUnauthorized},
		{name: "wrong user", path: "/api/events", user: "root", pass: "s3cret", setAuth: true, want: http.StatusUnauthorized},
		{name: "wrong password", path: "/api/events", user: "admin", pass: "nope", setAuth: true, want: http.StatusUnauthorized},
		{name: "valid", path: "/api/events", user: "admin", pass: "s3cret", setAuth: true, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.setAuth {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized && !strings.Contains(rec.Header().Get("WWW-Authenticate"), `realm="eventsched"`) {
				t.Errorf("missing challenge header: %q", rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}
