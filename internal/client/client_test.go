package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"receipt_desk/internal/api"
	"receipt_desk/internal/auth"
	"receipt_desk/internal/config"
	"receipt_desk/internal/db"
	"receipt_desk/internal/domain"
	"receipt_desk/internal/service"
	"receipt_desk/internal/storage"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	gin.DefaultWriter = io.Discard
	logrus.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	dir := t.TempDir()
	gdb, err := db.Open(&config.Config{
		DBDriver:   config.DriverSQLite,
		SQLitePath: filepath.Join(dir, "tickets.db"),
		IsProd:     true,
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	require.NoError(t, db.SeedAdmin(gdb, "admin", "s3cret-pass"))

	blobs, err := storage.NewDiskBlobStore(filepath.Join(dir, "uploads"), "")
	require.NoError(t, err)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	svc := service.NewTicketService(service.Options{
		Backend:  storage.NewStore(config.BackendEmbedded, gdb, blobs),
		Redis:    rdb,
		CacheTTL: time.Minute,
	})
	srv := httptest.NewServer(api.SetupRouter(api.Deps{
		DB:         gdb,
		Tickets:    svc,
		Sessions:   auth.NewSessionStore(rdb, 30*time.Minute),
		Lockout:    auth.NewLockout(rdb, 5, 15*time.Minute),
		JWTSecret:  "test-secret",
		UploadsDir: blobs.Dir(),
	}))
	t.Cleanup(srv.Close)
	return srv
}

func submission() Submission {
	file := make([]byte, 4096)
	copy(file, "\x89PNG\r\n\x1a\n")
	return Submission{
		UserID:             "user-42",
		RecipientName:      "Acme Trading",
		RecipientIban:      "TR" + strings.Repeat("1", 24),
		InvestmentMethod:   "garanti",
		InvestmentAmount:   "1500.00",
		InvestmentDateTime: "2025-05-02T10:30",
		FileName:           "receipt.png",
		ContentType:        "image/png",
		File:               file,
	}
}

func strPtr(s string) *string { return &s }

func TestClientRoundTrip(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL + "/")
	ctx := context.Background()

	created, err := c.CreateTicket(ctx, submission())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, created.Status)

	mine := c.GetTicketsByUser(ctx, "user-42")
	require.Len(t, mine, 1)
	assert.Equal(t, created.ID, mine[0].ID)

	login, err := c.Login(ctx, "admin", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, "admin", login.Admin.Username)
	assert.Equal(t, login.Token, c.Token)

	all := c.ListTickets(ctx, "pending", "acme", "")
	require.Len(t, all, 1)

	updated, err := c.UpdateTicket(ctx, created.ID, Update{Status: strPtr("rejected"), AdminNote: strPtr("amount mismatch")})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, updated.Status)
	assert.Equal(t, "amount mismatch", updated.AdminNote)

	result, err := c.Analyze(ctx, created.ID, "IBAN TR"+strings.Repeat("1", 24)+" Tutar 1.500,00 TL")
	require.NoError(t, err)
	assert.True(t, result.Advisory)
	assert.Equal(t, "provided", result.Source)

	require.NoError(t, c.DeleteTicket(ctx, created.ID))
	assert.Nil(t, c.GetTicket(ctx, created.ID))

	require.NoError(t, c.Logout(ctx))
	assert.Empty(t, c.Token)
}

func TestClientWriteErrors(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL)
	ctx := context.Background()

	s := submission()
	s.RecipientName = ""
	_, err := c.CreateTicket(ctx, s)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "All fields are required", apiErr.Message)

	_, err = c.UpdateTicket(ctx, 1, Update{Status: strPtr("approved")})
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	_, err = c.Login(ctx, "admin", "wrong")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestClientReadsDegradeToEmpty(t *testing.T) {
	c := New("http://127.0.0.1:1")
	c.HTTP.Timeout = time.Second
	ctx := context.Background()

	tickets := c.ListTickets(ctx, "", "", "")
	assert.NotNil(t, tickets)
	assert.Empty(t, tickets)
	assert.Empty(t, c.GetTicketsByUser(ctx, "user-42"))
	assert.Nil(t, c.GetTicket(ctx, 1))

	// Unauthenticated list calls fail with 401 and degrade the same way
	srv := newServer(t)
	c = New(srv.URL)
	assert.Empty(t, c.ListTickets(ctx, "", "", ""))
}

func TestClientHealth(t *testing.T) {
	srv := newServer(t)
	report, err := New(srv.URL).Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", report["status"])
}
