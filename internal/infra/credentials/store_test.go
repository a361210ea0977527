package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type stubExecutor struct {
	token    string
	err      error
	affected string
	queries  int
	exec    struct {
		query string
		args  []any
	}
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.exec.query = query
	s.exec.args = args
	return pgconn.NewCommandTag(s.affected), s.err
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.queries++
	return stubRow{token: s.token, err: s.err}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

type stubRow struct {
	token string
	err   error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) == 0 {
		return errors.New("no dest")
	}
	ptr, ok := dest[0].(*string)
	if !ok {
		return errors.New("invalid dest")
	}
	*ptr = r.token
	return nil
}

func TestToken(t *testing.T) {
	store := NewStore(&stubExecutor{token: " abc123 "})
	key, err := store.Token(context.Background(), ProviderGemini)
	if err != nil {
		t.Fatalf("Token error: %v", err)
	}
	if key != "abc123" {
		t.Fatalf("expected abc123, got %q", key)
	}
}

func TestToken_NoRows(t *testing.T) {
	store := NewStore(&stubExecutor{err: pgx.ErrNoRows})
	key, err := store.Token(context.Background(), ProviderOpenAI)
	if err != nil {
		t.Fatalf("Token error: %v", err)
	}
	if key != "" {
		t.Fatalf("expected empty key, got %q", key)
	}
}

func TestResolvePrefersEnvironment(t *testing.T) {
	exec := &stubExecutor{token: "stored"}
	store := NewStore(exec)
	key, err := store.Resolve(context.Background(), ProviderQwen, " from-env ")
	if err != nil || key != "from-env" {
		t.Fatalf("Resolve = %q, %v", key, err)
	}
	if exec.queries != 0 {
		t.Fatalf("expected no store query, got %d", exec.queries)
	}

	key, err = store.Resolve(context.Background(), ProviderQwen, "")
	if err != nil || key != "stored" {
		t.Fatalf("Resolve fallback = %q, %v", key, err)
	}

	var missing *Store
	if key, err := missing.Resolve(context.Background(), ProviderQwen, ""); err != nil || key != "" {
		t.Fatalf("nil store Resolve = %q, %v", key, err)
	}
}

func TestSet(t *testing.T) {
	for _, provider := range Providers {
		exec := &stubExecutor{}
		store := NewStore(exec)
		if err := store.Set(context.Background(), provider, "secret"); err != nil {
			t.Fatalf("Set(%s) error: %v", provider, err)
		}
		if len(exec.exec.args) != 3 {
			t.Fatalf("expected 3 args, got %d", len(exec.exec.args))
		}
		if v, ok := exec.exec.args[1].(string); !ok || v != "secret" {
			t.Fatalf("expected secret argument, got %T %v", exec.exec.args[1], exec.exec.args[1])
		}
	}
}

func TestSetRejectsInvalidInput(t *testing.T) {
	store := NewStore(&stubExecutor{})
	if err := store.Set(context.Background(), ProviderGemini, " "); err == nil {
		t.Fatal("expected error for empty key")
	}
	if err := store.Set(context.Background(), "midjourney", "k"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestDelete(t *testing.T) {
	exec := &stubExecutor{affected: "DELETE 1"}
	store := NewStore(exec)
	existed, err := store.Delete(context.Background(), " Gemini ")
	if err != nil || !existed {
		t.Fatalf("Delete = %v, %v", existed, err)
	}
	if exec.exec.args[0] != ProviderGemini {
		t.Fatalf("provider arg = %v", exec.exec.args[0])
	}

	exec.affected = "DELETE 0"
	if existed, _ := store.Delete(context.Background(), ProviderQwen); existed {
		t.Fatal("expected no existing key")
	}
	if _, err := store.Delete(context.Background(), "midjourney"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestMask(t *testing.T) {
	cases := map[string]string{"": "", "abc": "***", "sk-123456": "*****3456"}
	for in, want := range cases {
		if got := Mask(in); got != want {
			t.Fatalf("Mask(%q) = %q, want %q", in, got, want)
		}
	}
}
