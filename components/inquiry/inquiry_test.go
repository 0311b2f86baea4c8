package inquiry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/yanizio/sportcrm/internal/component"
	"github.com/yanizio/sportcrm/internal/database"
	"github.com/yanizio/sportcrm/internal/funnel"
	"github.com/yanizio/sportcrm/internal/listcache"
	"github.com/yanizio/sportcrm/internal/trial"
)

const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

func newRouter(t *testing.T) (chi.Router, *trial.Repository) {
	t.Helper()
	ctx := context.Background()
	db, err := database.OpenWithOptions(ctx, "sqlite", ":memory:", database.Options{PingRetries: 1})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	stmts, err := trial.Schema("sqlite")
	if err != nil {
		t.Fatalf("Schema: %v", err)
	}
	if err := database.Migrate(ctx, db, stmts); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	repo := trial.NewRepository(db)
	lc := listcache.New(repo)
	t.Cleanup(lc.Close)
	svc := funnel.New(funnel.Deps{Store: repo, Creator: repo, Cache: lc})
	t.Cleanup(svc.Wait)

	c := &Comp{}
	if err := c.Init(component.Env{Funnel: svc}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	r := chi.NewRouter()
	r.Group(c.Routes)
	return r, repo
}

func post(r http.Handler, ua, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/inquiries", strings.NewReader(body))
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

const valid = `{"childName":"Mila","childAge":8,"parentName":"Anna","parentPhone":"+10000000",
"sectionId":2,"branchId":1,"desiredDate":"2026-03-01T00:00:00Z","comment":"evenings"}`

func TestCreateInquiry(t *testing.T) {
	r, repo := newRouter(t)
	rec := post(r, browserUA, valid)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	rows, err := repo.List(context.Background())
	if err != nil || len(rows) != 1 {
		t.Fatalf("List = %v, %v", rows, err)
	}
	if rows[0].Status != trial.StatusNew || rows[0].Notes != "evenings" {
		t.Errorf("stored %+v", rows[0])
	}
}

func TestRejectsAutomatedClients(t *testing.T) {
	r, repo := newRouter(t)
	for _, ua := range []string{"", "curl/8.4.0", "Googlebot/2.1 (+http://www.google.com/bot.html)"} {
		if rec := post(r, ua, valid); rec.Code != http.StatusForbidden {
			t.Errorf("%q: status %d", ua, rec.Code)
		}
	}
	if rows, _ := repo.List(context.Background()); len(rows) != 0 {
		t.Errorf("bot submission stored: %v", rows)
	}
}

func TestRejectsInvalidSubmission(t *testing.T) {
	r, _ := newRouter(t)
	if rec := post(r, browserUA, `{"childName":"Mila"}`); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("missing fields: %d", rec.Code)
	}
	if rec := post(r, browserUA, `{"childName":`); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed: %d", rec.Code)
	}
	if rec := post(r, browserUA, `{"sourceCity":"x"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown field: %d", rec.Code)
	}
}
