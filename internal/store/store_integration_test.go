package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestConversationRecordAgainstPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	pgC, err := tcPostgres.RunContainer(ctx,
		tcPostgres.WithDatabase("webbuilder"),
		tcPostgres.WithUsername("webbuilder"),
		tcPostgres.WithPassword("webbuilder"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp")),
	)
	if err != nil {
		t.Fatalf("postgres container: %v", err)
	}
	defer func() { _ = pgC.Terminate(ctx) }()

	host, err := pgC.Host(ctx)
	if err != nil {
		t.Fatalf("postgres host: %v", err)
	}
	port, err := pgC.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("postgres port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://webbuilder:webbuilder@%s:%s/webbuilder?sslmode=disable", host, port.Port())

	if err := Migrate("file://../../migrations", dsn, "up", 0); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	// a second run is a no-op
	if err := Migrate("file://../../migrations", dsn, "up", 0); err != nil {
		t.Fatalf("migrate up again: %v", err)
	}

	st, err := NewWithDSN(ctx, dsn)
	if err != nil {
		t.Fatalf("NewWithDSN: %v", err)
	}
	defer st.Close()

	uid, err := st.EnsureUser(ctx, "sess-int")
	if err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	again, err := st.EnsureUser(ctx, "sess-int")
	if err != nil || again != uid {
		t.Fatalf("EnsureUser must be stable: %q vs %q (%v)", uid, again, err)
	}

	for _, m := range []struct{ role, content string }{
		{RoleUser, "crea mi portfolio"},
		{RoleAgent, "¡Listo! He creado tu página portfolio."},
		{RoleUser, "ahora una tienda"},
	} {
		if _, err := st.AppendMessage(ctx, uid, m.role, m.content); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}
	msgs, err := st.ListMessages(ctx, "sess-int", 2)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Role != RoleAgent || msgs[1].Content != "ahora una tienda" {
		t.Fatalf("expected the two latest messages oldest first, got %+v", msgs)
	}

	rec := PageRecord{PageID: "2026-02-19_portfolio_sess-i", SiteType: "portfolio", Prompt: "crea mi portfolio",
		HTMLFile: "2026-02-19_portfolio_sess-i.html", JSONFile: "2026-02-19_portfolio_sess-i.json"}
	if err := st.RecordPage(ctx, uid, rec); err != nil {
		t.Fatalf("RecordPage: %v", err)
	}
	pages, err := st.ListPagesBySession(ctx, "sess-int")
	if err != nil || len(pages) != 1 || pages[0].PageID != rec.PageID {
		t.Fatalf("unexpected pages %+v %v", pages, err)
	}

	if err := Migrate("file://../../migrations", dsn, "down", 1); err != nil {
		t.Fatalf("migrate down: %v", err)
	}
}
