package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hongminglow/all-in-iam/internal/auth"
	"github.com/hongminglow/all-in-iam/internal/config"
	"github.com/hongminglow/all-in-iam/internal/idgen"
	"github.com/hongminglow/all-in-iam/internal/storage/sqlstore"
	"github.com/hongminglow/all-in-iam/internal/users"
)

// TestPostgresIntegration runs the create and login flow against a live
// Postgres database.
func TestPostgresIntegration(t *testing.T) {
	if os.Getenv("RUN_AUTH_INTEGRATION") != "true" {
		t.Skip("set RUN_AUTH_INTEGRATION=true to run this integration test")
	}

	loadDotEnv()
	dbURL := mustGetEnv(t, "DATABASE_URL")

	ctx := context.Background()
	conn, err := sqlstore.Open(ctx, sqlstore.Postgres, dbURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, sqlstore.Migrate(ctx, conn, sqlstore.Postgres, nil))

	ids, err := idgen.New(1)
	require.NoError(t, err)
	store := sqlstore.NewStore(sqlstore.New(conn, sqlstore.Postgres, sqlstore.WithIDGenerator(ids)))
	userSvc := users.NewService(store, ids, users.WithHashCost(bcrypt.MinCost))
	adminPassword := fmt.Sprintf("Pass!%d", time.Now().UnixNano())
	adminEmail := fmt.Sprintf("admin_%d@example.com", time.Now().UnixNano())
	require.NoError(t, users.NewSeeder(userSvc, adminEmail, adminPassword).EnsureDefaults(ctx))

	tokens := auth.NewTokenManager(mustGetEnv(t, "JWT_SECRET"), "all-in-iam", time.Hour)
	srv := New(config.Config{CORSOrigins: []string{"*"}}, Deps{
		Auth:  auth.NewService(store.Users(), tokens, nil),
		Users: userSvc,
		DB:    conn,
	})
	h := harness{handler: srv.Handler(), tokens: tokens}

	admin := h.login(t, adminEmail, adminPassword)
	email := fmt.Sprintf("apitest_%d@example.com", time.Now().UnixNano())
	rec := h.do(t, http.MethodPost, "/users", admin, `{"name":"API Test","email":"`+email+`","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	token := h.login(t, email, "secret1")
	require.NotEmpty(t, strings.TrimSpace(token))
	t.Logf("created %s and logged in via /auth/login", email)
}

func mustGetEnv(t *testing.T, key string) string {
	t.Helper()
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		t.Fatalf("%s is required", key)
	}
	return val
}

func loadDotEnv() {
	paths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}
	for _, path := range paths {
		_ = godotenv.Overload(path)
	}
}
