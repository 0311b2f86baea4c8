package component

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
)

type stubComponent struct {
	name   string
	stmts  []string
	initOK bool
}

func (s *stubComponent) Name() string { return s.name }

func (s *stubComponent) Init(Env) error {
	s.initOK = true
	return nil
}

func (s *stubComponent) Routes(r chi.Router) {
	r.Get("/"+s.name, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(s.name))
	})
}

func (s *stubComponent) Migrations(driver string) ([]string, error) {
	if driver == "bogus" {
		return nil, errors.New("unsupported")
	}
	return s.stmts, nil
}

func TestMountAndMigrate(t *testing.T) {
	a := &stubComponent{name: "alpha", stmts: []string{"CREATE TABLE a (id INT)"}}
	b := &stubComponent{name: "beta"}
	Register(b)
	Register(a)

	all := All()
	if len(all) < 2 || all[0].Name() != "alpha" {
		t.Fatalf("All() not sorted: %v", all)
	}

	r := chi.NewRouter()
	if err := Mount(r, Env{}); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if !a.initOK || !b.initOK {
		t.Fatal("Init not called")
	}
	for _, p := range []string{"/alpha", "/beta"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, p, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d", p, rec.Code)
		}
	}

	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer raw.Close()
	mock.ExpectExec("CREATE TABLE a").WillReturnResult(sqlmock.NewResult(0, 0))
	if err := Migrate(context.Background(), sqlx.NewDb(raw, "sqlmock"), "sqlite"); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}

	if err := Migrate(context.Background(), sqlx.NewDb(raw, "sqlmock"), "bogus"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
