package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"receipt_desk/internal/config"
	"receipt_desk/internal/db"
	"receipt_desk/internal/domain"
	"receipt_desk/internal/events"
	"receipt_desk/internal/storage"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logrus.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type recorder struct {
	mu     sync.Mutex
	events []events.TicketEvent
	err    error
}

func (r *recorder) Publish(_ context.Context, ev events.TicketEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) Enabled() bool { return true }

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

// faultyBackend injects failures into an otherwise real store
type faultyBackend struct {
	*storage.Store
	putErr        error
	createErr     error
	deleteBlobErr error
	onList        func() // Runs after the rows are read
}

func (f *faultyBackend) ListTickets(ctx context.Context, filter storage.TicketFilter) ([]domain.Ticket, error) {
	tickets, err := f.Store.ListTickets(ctx, filter)
	if f.onList != nil {
		hook := f.onList
		f.onList = nil
		hook()
	}
	return tickets, err
}

func (f *faultyBackend) PutBlob(ctx context.Context, name, contentType string, data []byte) error {
	if f.putErr != nil {
		return f.putErr
	}
	return f.Store.PutBlob(ctx, name, contentType, data)
}

func (f *faultyBackend) CreateTicket(ctx context.Context, t *domain.Ticket) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.Store.CreateTicket(ctx, t)
}

func (f *faultyBackend) DeleteBlob(ctx context.Context, name string) error {
	if f.deleteBlobErr != nil {
		return f.deleteBlobErr
	}
	return f.Store.DeleteBlob(ctx, name)
}

type fixture struct {
	svc     *TicketService
	backend *faultyBackend
	blobs   *storage.DiskBlobStore
	mr      *miniredis.Miniredis
	events  *recorder
	clock   *clock
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	gdb, err := db.Open(&config.Config{
		DBDriver:   config.DriverSQLite,
		SQLitePath: filepath.Join(dir, "tickets.db"),
		IsProd:     true,
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))

	blobs, err := storage.NewDiskBlobStore(filepath.Join(dir, "uploads"), "http://localhost:3001")
	require.NoError(t, err)
	backend := &faultyBackend{Store: storage.NewStore(config.BackendEmbedded, gdb, blobs)}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	rec := &recorder{}
	clk := &clock{t: time.Date(2025, 5, 2, 12, 0, 0, 0, time.UTC)}
	svc := NewTicketService(Options{
		Backend:        backend,
		Redis:          rdb,
		Publisher:      rec,
		Location:       time.UTC,
		MaxUploadBytes: 5 * 1024 * 1024,
		CacheTTL:       time.Minute,
		Now:            clk.Now,
	})
	return &fixture{svc: svc, backend: backend, blobs: blobs, mr: mr, events: rec, clock: clk}
}

func pngBytes(size int) []byte {
	b := make([]byte, size)
	copy(b, "\x89PNG\r\n\x1a\n")
	return b
}

func validInput() CreateTicketInput {
	return CreateTicketInput{
		UserID:             "user-42",
		RecipientName:      "Acme Trading",
		RecipientIban:      "TR" + strings.Repeat("1", 24),
		InvestmentMethod:   "garanti",
		InvestmentAmount:   "1500.00",
		InvestmentDateTime: "2025-05-02T10:30",
		Receipt: &Receipt{
			FileName:    "receipt.png",
			ContentType: "image/png",
			Data:        pngBytes(2 * 1024 * 1024),
		},
	}
}

func (f *fixture) uploads(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.blobs.Dir())
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func (f *fixture) rows(t *testing.T) []domain.Ticket {
	t.Helper()
	tickets, err := f.backend.Store.ListTickets(context.Background(), storage.TicketFilter{})
	require.NoError(t, err)
	return tickets
}

func requireKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()
	require.Error(t, err)
	var serr *Error
	require.True(t, errors.As(err, &serr), "expected *service.Error, got %T", err)
	require.Equal(t, kind, serr.Kind, serr.Error())
	return serr
}

func TestCreateTicket(t *testing.T) {
	f := newFixture(t)
	ticket, err := f.svc.CreateTicket(context.Background(), validInput())
	require.NoError(t, err)

	assert.NotZero(t, ticket.ID)
	assert.Equal(t, domain.StatusPending, ticket.Status)
	assert.Equal(t, "", ticket.AdminNote)
	assert.InDelta(t, 1500.0, ticket.InvestmentAmount, 0.001)
	assert.Equal(t, "image/png", ticket.ReceiptMimeType)
	assert.Equal(t, "receipt.png", ticket.ReceiptOriginalName)
	assert.Equal(t, int64(2*1024*1024), ticket.ReceiptSize)
	assert.Regexp(t, `^receipt-\d+-[0-9a-f]{8}\.png$`, ticket.ReceiptFileName)
	assert.Equal(t, "http://localhost:3001/uploads/"+ticket.ReceiptFileName, ticket.ReceiptURL)
	assert.True(t, ticket.InvestmentDateTime.Equal(time.Date(2025, 5, 2, 10, 30, 0, 0, time.UTC)))

	data, err := os.ReadFile(filepath.Join(f.blobs.Dir(), ticket.ReceiptFileName))
	require.NoError(t, err)
	assert.Len(t, data, 2*1024*1024)
	assert.Equal(t, []string{events.TicketCreated}, f.events.types())

	got, err := f.svc.GetTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.ReceiptURL, got.ReceiptURL)
}

func TestCreateTicketSanitizesNames(t *testing.T) {
	f := newFixture(t)
	in := validInput()
	in.Receipt.FileName = `..\..\evil name.p/hp`
	ticket, err := f.svc.CreateTicket(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "hp", ticket.ReceiptOriginalName)
	assert.Regexp(t, `^receipt-\d+-[0-9a-f]{8}\.png$`, ticket.ReceiptFileName)

	in = validInput()
	in.Receipt.FileName = "scan.JPEG"
	in.Receipt.ContentType = "image/jpeg"
	in.Receipt.Data = append([]byte("\xff\xd8\xff\xe0"), make([]byte, 64)...)
	ticket, err = f.svc.CreateTicket(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(ticket.ReceiptFileName, ".jpeg"))
	assert.Equal(t, "image/jpeg", ticket.ReceiptMimeType)
}

func TestCreateTicketZonedDate(t *testing.T) {
	f := newFixture(t)
	in := validInput()
	in.InvestmentDateTime = "2025-05-02T13:30:00+03:00"
	ticket, err := f.svc.CreateTicket(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, ticket.InvestmentDateTime.Equal(time.Date(2025, 5, 2, 10, 30, 0, 0, time.UTC)))
}

func TestCreateTicketValidation(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*CreateTicketInput)
		message string
	}{
		{"missing receipt", func(in *CreateTicketInput) { in.Receipt = nil; in.UserID = "" }, "Receipt file is required"},
		{"blank field", func(in *CreateTicketInput) { in.RecipientIban = "   " }, "All fields are required"},
		{"missing user", func(in *CreateTicketInput) { in.UserID = "" }, "All fields are required"},
		{"negative amount", func(in *CreateTicketInput) { in.InvestmentAmount = "-5" }, "Investment amount must be a positive number"},
		{"zero amount", func(in *CreateTicketInput) { in.InvestmentAmount = "0" }, "Investment amount must be a positive number"},
		{"text amount", func(in *CreateTicketInput) { in.InvestmentAmount = "lots" }, "Investment amount must be a positive number"},
		{"bad date", func(in *CreateTicketInput) { in.InvestmentDateTime = "yesterday" }, "Invalid investment date"},
		{"future date", func(in *CreateTicketInput) { in.InvestmentDateTime = "2025-05-03T10:00" }, "Investment date cannot be in the future"},
		{"oversize", func(in *CreateTicketInput) { in.Receipt.Data = pngBytes(5*1024*1024 + 1) }, "File size exceeds 5MB limit"},
		{"declared type", func(in *CreateTicketInput) { in.Receipt.ContentType = "text/plain" }, "Invalid file type. Only JPG, PNG, WEBP, and PDF are allowed."},
		{"sniffed type", func(in *CreateTicketInput) { in.Receipt.Data = []byte("#!/bin/sh\necho hi\n") }, "Invalid file type. Only JPG, PNG, WEBP, and PDF are allowed."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			in := validInput()
			tc.mutate(&in)
			_, err := f.svc.CreateTicket(context.Background(), in)
			serr := requireKind(t, err, KindValidation)
			assert.Equal(t, tc.message, serr.Message)
			assert.Empty(t, f.rows(t))
			assert.Empty(t, f.uploads(t))
			assert.Empty(t, f.events.types())
		})
	}
}

func TestCreateTicketAcceptsPDF(t *testing.T) {
	f := newFixture(t)
	in := validInput()
	in.Receipt.FileName = "dekont.pdf"
	in.Receipt.ContentType = "application/pdf; charset=binary"
	in.Receipt.Data = []byte("%PDF-1.7\n%âãÏÓ\n1 0 obj\n<<>>\nendobj\n")
	ticket, err := f.svc.CreateTicket(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", ticket.ReceiptMimeType)
}

func TestCreateTicketBlobFailure(t *testing.T) {
	f := newFixture(t)
	f.backend.putErr = errors.New("bucket unavailable")
	_, err := f.svc.CreateTicket(context.Background(), validInput())
	serr := requireKind(t, err, KindStorage)
	assert.Equal(t, "bucket unavailable", serr.Detail)
	assert.Empty(t, f.rows(t))
}

func TestCreateTicketInsertFailureRemovesBlob(t *testing.T) {
	f := newFixture(t)
	f.backend.createErr = errors.New("disk full")
	_, err := f.svc.CreateTicket(context.Background(), validInput())
	serr := requireKind(t, err, KindDatabase)
	assert.Equal(t, "Database error", serr.Message)
	assert.Equal(t, "disk full", serr.Detail)
	assert.Empty(t, f.uploads(t))
	assert.Empty(t, f.events.types())
}

func TestUpdateTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateTicket(ctx, validInput())
	require.NoError(t, err)

	approved := "approved"
	updated, err := f.svc.UpdateTicket(ctx, created.ID, UpdateTicketInput{Status: &approved})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, updated.Status)
	assert.Equal(t, "", updated.AdminNote)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))
	assert.True(t, updated.CreatedAt.Equal(created.CreatedAt))
	assert.Equal(t, created.RecipientName, updated.RecipientName)
	assert.Equal(t, created.ReceiptFileName, updated.ReceiptFileName)
	assert.InDelta(t, created.InvestmentAmount, updated.InvestmentAmount, 0.001)
	assert.NotEmpty(t, updated.ReceiptURL)

	note := "verified"
	updated, err = f.svc.UpdateTicket(ctx, created.ID, UpdateTicketInput{AdminNote: &note})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, updated.Status)
	assert.Equal(t, "verified", updated.AdminNote)

	assert.Equal(t, []string{events.TicketCreated, events.TicketUpdated, events.TicketUpdated}, f.events.types())
}

func TestUpdateTicketRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateTicket(ctx, validInput())
	require.NoError(t, err)

	_, err = f.svc.UpdateTicket(ctx, created.ID, UpdateTicketInput{})
	serr := requireKind(t, err, KindValidation)
	assert.Equal(t, "No valid fields to update", serr.Message)

	empty := "  "
	_, err = f.svc.UpdateTicket(ctx, created.ID, UpdateTicketInput{Status: &empty})
	serr = requireKind(t, err, KindValidation)
	assert.Equal(t, "No valid fields to update", serr.Message)

	bogus := "archived"
	_, err = f.svc.UpdateTicket(ctx, created.ID, UpdateTicketInput{Status: &bogus})
	serr = requireKind(t, err, KindValidation)
	assert.Equal(t, "Invalid status", serr.Message)

	approved := "approved"
	_, err = f.svc.UpdateTicket(ctx, created.ID+100, UpdateTicketInput{Status: &approved})
	requireKind(t, err, KindNotFound)

	got, err := f.svc.GetTicket(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
}

func TestDeleteTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateTicket(ctx, validInput())
	require.NoError(t, err)
	require.Len(t, f.uploads(t), 1)

	require.NoError(t, f.svc.DeleteTicket(ctx, created.ID))
	assert.Empty(t, f.uploads(t))
	_, err = f.svc.GetTicket(ctx, created.ID)
	requireKind(t, err, KindNotFound)
	requireKind(t, f.svc.DeleteTicket(ctx, created.ID), KindNotFound)
	assert.Equal(t, []string{events.TicketCreated, events.TicketDeleted}, f.events.types())
}

func TestDeleteTicketIgnoresBlobFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateTicket(ctx, validInput())
	require.NoError(t, err)

	f.backend.deleteBlobErr = errors.New("permission denied")
	require.NoError(t, f.svc.DeleteTicket(ctx, created.ID))
	assert.Empty(t, f.rows(t))
}

func TestListTicketsFiltersAndOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateTicket(ctx, validInput())
	require.NoError(t, err)
	in := validInput()
	in.UserID = "user-7"
	in.RecipientName = "Jane Doe"
	in.InvestmentMethod = "ACME Bank"
	second, err := f.svc.CreateTicket(ctx, in)
	require.NoError(t, err)
	in = validInput()
	in.RecipientName = "John Roe"
	in.InvestmentMethod = "ziraat"
	third, err := f.svc.CreateTicket(ctx, in)
	require.NoError(t, err)

	all, err := f.svc.ListTickets(ctx, storage.TicketFilter{Status: "all"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, third.ID, all[0].ID)
	assert.Equal(t, second.ID, all[1].ID)
	assert.Equal(t, first.ID, all[2].ID)
	for _, tk := range all {
		assert.NotEmpty(t, tk.ReceiptURL)
	}

	acme, err := f.svc.ListTickets(ctx, storage.TicketFilter{Search: "Acme"})
	require.NoError(t, err)
	require.Len(t, acme, 2)
	assert.Equal(t, second.ID, acme[0].ID)
	assert.Equal(t, first.ID, acme[1].ID)

	mine, err := f.svc.GetTicketsByUser(ctx, "user-42")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	pending, err := f.svc.ListTickets(ctx, storage.TicketFilter{Status: "approved"})
	require.NoError(t, err)
	assert.NotNil(t, pending)
	assert.Empty(t, pending)

	_, err = f.svc.ListTickets(ctx, storage.TicketFilter{Status: "archived"})
	requireKind(t, err, KindValidation)
	_, err = f.svc.GetTicketsByUser(ctx, " ")
	requireKind(t, err, KindValidation)
}

func TestListTicketsCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateTicket(ctx, validInput())
	require.NoError(t, err)

	list, err := f.svc.ListTickets(ctx, storage.TicketFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	key := listCacheKey(storage.TicketFilter{})
	assert.True(t, f.mr.Exists(key))

	// A row written behind the service's back is not visible until the
	// cache is invalidated.
	sneaky := list[0]
	sneaky.ID = 0
	sneaky.ReceiptFileName = "receipt-sneaky.png"
	require.NoError(t, f.backend.Store.CreateTicket(ctx, &sneaky))

	cached, err := f.svc.ListTickets(ctx, storage.TicketFilter{})
	require.NoError(t, err)
	assert.Len(t, cached, 1)
	assert.NotEmpty(t, cached[0].ReceiptURL)

	_, err = f.svc.CreateTicket(ctx, validInput())
	require.NoError(t, err)
	assert.False(t, f.mr.Exists(key))

	fresh, err := f.svc.ListTickets(ctx, storage.TicketFilter{})
	require.NoError(t, err)
	assert.Len(t, fresh, 3)
}

func TestListTicketsDoesNotCacheListReadDuringUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateTicket(ctx, validInput())
	require.NoError(t, err)

	approved := "approved"
	f.backend.onList = func() {
		_, err := f.svc.UpdateTicket(ctx, created.ID, UpdateTicketInput{Status: &approved})
		require.NoError(t, err)
	}
	stale, err := f.svc.ListTickets(ctx, storage.TicketFilter{})
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, domain.StatusPending, stale[0].Status)
	assert.False(t, f.mr.Exists(listCacheKey(storage.TicketFilter{})))

	fresh, err := f.svc.ListTickets(ctx, storage.TicketFilter{})
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, domain.StatusApproved, fresh[0].Status)
	assert.True(t, f.mr.Exists(listCacheKey(storage.TicketFilter{})))
}

func TestListTicketsWithoutRedis(t *testing.T) {
	f := newFixture(t)
	svc := NewTicketService(Options{Backend: f.backend, Now: f.clock.Now})
	_, err := svc.CreateTicket(context.Background(), validInput())
	require.NoError(t, err)
	list, err := svc.ListTickets(context.Background(), storage.TicketFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestEventFailureDoesNotFailMutation(t *testing.T) {
	f := newFixture(t)
	f.events.err = errors.New("broker down")
	ticket, err := f.svc.CreateTicket(context.Background(), validInput())
	require.NoError(t, err)
	assert.NotZero(t, ticket.ID)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	h := f.svc.Health(context.Background())
	assert.True(t, h.OK())
	assert.True(t, h.Cache.OK)
	assert.True(t, h.Events)
	assert.False(t, h.OCR)
	assert.Equal(t, "embedded", h.Backend.Backend)

	f.mr.SetError("ERR connection refused by test")
	h = f.svc.Health(context.Background())
	assert.False(t, h.OK())
	assert.Equal(t, "degraded", h.Status)
	assert.NotEmpty(t, h.Cache.Error)
}

func TestHealthReportsOCR(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.svc.ExtractorEnabled())
	f.svc.extractor = &fakeExtractor{}
	assert.True(t, f.svc.ExtractorEnabled())
	assert.True(t, f.svc.Health(context.Background()).OCR)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(fmt.Errorf("load: %w", notFound("Ticket not found"))))
	assert.Equal(t, KindValidation, KindOf(validation("bad")))
	assert.Equal(t, Kind(0), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(0), KindOf(nil))
}

type fakeExtractor struct {
	text string
	err  error
	mime string
}

func (e *fakeExtractor) ExtractText(_ context.Context, _ []byte, mimeType string) (string, error) {
	e.mime = mimeType
	return e.text, e.err
}

func TestAnalyzeTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.CreateTicket(ctx, validInput())
	require.NoError(t, err)

	_, err = f.svc.AnalyzeTicket(ctx, created.ID, "")
	requireKind(t, err, KindUnavailable)

	text := "Alici: Acme Trading\nIBAN: " + created.RecipientIban + "\nTarih: 02.05.2025\nTutar: 1.500,00 TL"
	res, err := f.svc.AnalyzeTicket(ctx, created.ID, text)
	require.NoError(t, err)
	assert.Equal(t, "provided", res.Source)
	assert.Equal(t, 100, res.Report.ConsistencyScore)
	assert.Equal(t, 4, res.Comparison.MatchedFields)
	assert.True(t, res.Advisory)

	ex := &fakeExtractor{text: "Tutar: 9.999,00 TL"}
	f.svc.extractor = ex
	res, err = f.svc.AnalyzeTicket(ctx, created.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "ocr", res.Source)
	assert.Equal(t, "image/png", ex.mime)
	assert.False(t, res.Comparison.Amount.Match)

	_, err = f.svc.AnalyzeTicket(ctx, created.ID+10, "text")
	requireKind(t, err, KindNotFound)
}

func TestAnalyzeTicketRejectsPDFForOCR(t *testing.T) {
	f := newFixture(t)
	f.svc.extractor = &fakeExtractor{text: "ignored"}
	in := validInput()
	in.Receipt.FileName = "dekont.pdf"
	in.Receipt.ContentType = "application/pdf"
	in.Receipt.Data = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n")
	created, err := f.svc.CreateTicket(context.Background(), in)
	require.NoError(t, err)

	_, err = f.svc.AnalyzeTicket(context.Background(), created.ID, "")
	serr := requireKind(t, err, KindValidation)
	assert.Equal(t, "OCR is only available for image receipts", serr.Message)
}
