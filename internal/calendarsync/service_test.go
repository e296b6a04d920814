package calendarsync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"lodging/internal/daterange"
	"lodging/internal/rooms"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeRepository struct {
	mu         sync.Mutex
	sources    map[uuid.UUID]*CalendarSource
	ranges     map[uuid.UUID][]BlockedDateRange
	failures   map[uuid.UUID]string
	replaceErr error
	createErr  error
}

func newFakeRepository(sources ...CalendarSource) *fakeRepository {
	f := &fakeRepository{
		sources:  make(map[uuid.UUID]*CalendarSource),
		ranges:   make(map[uuid.UUID][]BlockedDateRange),
		failures: make(map[uuid.UUID]string),
	}
	for i := range sources {
		s := sources[i]
		f.sources[s.ID] = &s
	}
	return f
}

func (f *fakeRepository) CreateSource(_ context.Context, source *CalendarSource) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.sources[source.ID] = source
	return nil
}

func (f *fakeRepository) GetSource(_ context.Context, id uuid.UUID) (*CalendarSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sources[id]
	if !ok {
		return nil, ErrSourceNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeRepository) ListSources(_ context.Context, roomID string) ([]CalendarSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []CalendarSource
	for _, s := range f.sources {
		if roomID == "" || s.RoomID == roomID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeRepository) ListEnabledSources(_ context.Context) ([]CalendarSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []CalendarSource
	for _, s := range f.sources {
		if s.Enabled {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeRepository) DeleteSource(_ context.Context, id uuid.UUID) (*CalendarSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sources[id]
	if !ok {
		return nil, ErrSourceNotFound
	}
	delete(f.sources, id)
	delete(f.ranges, id)
	return s, nil
}

func (f *fakeRepository) ReplaceBlockedRanges(_ context.Context, source *CalendarSource, ranges []BlockedDateRange, syncedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.ranges[source.ID] = append([]BlockedDateRange(nil), ranges...)
	if s, ok := f.sources[source.ID]; ok {
		s.LastSyncedAt = &syncedAt
		s.LastError = nil
	}
	delete(f.failures, source.ID)
	return nil
}

func (f *fakeRepository) RecordFailure(_ context.Context, sourceID uuid.UUID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[sourceID] = message
	return nil
}

type fakeFetcher struct {
	bodies  map[string]string
	block   chan struct{}
	started chan struct{}
	once    sync.Once
}

func (f *fakeFetcher) Fetch(ctx context.Context, feedURL string) ([]byte, error) {
	if f.started != nil {
		f.once.Do(func() { close(f.started) })
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	body, ok := f.bodies[feedURL]
	if !ok {
		return nil, fmt.Errorf("%w: unexpected status 404", ErrFetch)
	}
	return []byte(body), nil
}

type fakeRooms map[string]bool

func (f fakeRooms) Validate(_ context.Context, id string) error {
	if !f[id] {
		return rooms.ErrRoomNotFound
	}
	return nil
}

type recordingInvalidator struct {
	mu    sync.Mutex
	rooms []string
}

func (r *recordingInvalidator) InvalidateRoom(_ context.Context, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms = append(r.rooms, roomID)
}

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func event(uid, start, end string) string {
	return "BEGIN:VEVENT\r\nUID:" + uid + "\r\nDTSTART;VALUE=DATE:" + start + "\r\nDTEND;VALUE=DATE:" + end + "\r\nEND:VEVENT\r\n"
}

func feed(events ...string) string {
	return "BEGIN:VCALENDAR\r\nVERSION:2.0\r\n" + strings.Join(events, "") + "END:VCALENDAR\r\n"
}

func newSource(roomID, url string) CalendarSource {
	return CalendarSource{ID: uuid.New(), RoomID: roomID, URL: url, Origin: "airbnb", Enabled: true}
}

func newTestService(repo Repository, fetcher Fetcher, inv Invalidator) Service {
	return NewService(repo, fetcher, fakeRooms{"quarto-azul": true, "suite": true}, inv, Options{
		Workers: 2,
		Now:     func() time.Time { return testNow },
	})
}

func TestSyncSourceReplacesRanges(t *testing.T) {
	src := newSource("quarto-azul", "https://airbnb.example/ical/1.ics")
	repo := newFakeRepository(src)
	fetcher := &fakeFetcher{bodies: map[string]string{
		src.URL: feed(
			event("past", "20240201", "20240205"),
			event("ends-today", "20240225", "20240301"),
			event("future", "20240310", "20240313"),
			event("inverted", "20240320", "20240318"),
			event("zero-length", "20240325", "20240325"),
		),
	}}
	inv := &recordingInvalidator{}
	repo.ranges[src.ID] = []BlockedDateRange{{ExternalID: "stale"}}

	result, err := newTestService(repo, fetcher, inv).SyncSource(context.Background(), src.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.OK() {
		t.Fatalf("sync failed: %s", result.Error)
	}
	if result.Events != 2 || result.Expired != 1 || result.Skipped != 2 {
		t.Errorf("result = %+v, want 2 events, 1 expired, 2 skipped", result)
	}

	stored := repo.ranges[src.ID]
	if len(stored) != 2 {
		t.Fatalf("stored %d ranges, want 2 (stale rows replaced)", len(stored))
	}
	for _, r := range stored {
		if r.ExternalID == "stale" {
			t.Error("stale range survived the replace")
		}
		if r.RoomID != "quarto-azul" || r.CalendarID != src.ID || r.Origin != "airbnb" {
			t.Errorf("range not attributed to its source: %+v", r)
		}
	}
	if stored[1].StartDate != daterange.Date(2024, 3, 10) {
		t.Errorf("future range start = %s", stored[1].StartDate)
	}
	if repo.sources[src.ID].LastSyncedAt == nil {
		t.Error("last_synced_at not stamped")
	}
	if len(inv.rooms) != 1 || inv.rooms[0] != "quarto-azul" {
		t.Errorf("invalidated rooms = %v", inv.rooms)
	}
}

type blockKey struct {
	RoomID, Origin, ExternalID, Summary string
	Start, End                          time.Time
}

func storedBlocks(repo *fakeRepository, id uuid.UUID) []blockKey {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	out := make([]blockKey, 0, len(repo.ranges[id]))
	for _, r := range repo.ranges[id] {
		out = append(out, blockKey{r.RoomID, r.Origin, r.ExternalID, r.Summary, r.StartDate, r.EndDate})
	}
	return out
}

func TestSyncSourceTwiceIsStable(t *testing.T) {
	src := newSource("quarto-azul", "https://airbnb.example/ical/2.ics")
	repo := newFakeRepository(src)
	fetcher := &fakeFetcher{bodies: map[string]string{
		src.URL: feed(event("a", "20240310", "20240313"), event("b", "20240401", "20240404")),
	}}
	svc := newTestService(repo, fetcher, nil)

	if _, err := svc.SyncSource(context.Background(), src.ID); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	first := storedBlocks(repo, src.ID)

	result, err := svc.SyncSource(context.Background(), src.ID)
	if err != nil || !result.OK() {
		t.Fatalf("second sync: %v %+v", err, result)
	}
	second := storedBlocks(repo, src.ID)

	if len(first) != 2 || len(second) != len(first) {
		t.Fatalf("stored %d then %d ranges, want 2 both times", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("range %d changed between syncs: %+v -> %+v", i, first[i], second[i])
		}
	}
}

func TestSyncSourceDropsRemovedEvents(t *testing.T) {
	src := newSource("quarto-azul", "https://airbnb.example/ical/3.ics")
	repo := newFakeRepository(src)
	fetcher := &fakeFetcher{bodies: map[string]string{
		src.URL: feed(event("kept", "20240310", "20240313"), event("cancelled", "20240401", "20240404")),
	}}
	svc := newTestService(repo, fetcher, nil)

	if _, err := svc.SyncSource(context.Background(), src.ID); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if got := storedBlocks(repo, src.ID); len(got) != 2 {
		t.Fatalf("first sync stored %d ranges, want 2", len(got))
	}

	fetcher.bodies[src.URL] = feed(event("kept", "20240310", "20240313"))
	result, err := svc.SyncSource(context.Background(), src.ID)
	if err != nil || !result.OK() {
		t.Fatalf("second sync: %v %+v", err, result)
	}
	got := storedBlocks(repo, src.ID)
	if len(got) != 1 || got[0].ExternalID != "kept" {
		t.Fatalf("after upstream removal stored %+v, want only kept", got)
	}
	if result.Events != 1 {
		t.Errorf("events = %d, want 1", result.Events)
	}
}

func TestSyncSourceFetchFailureKeepsRanges(t *testing.T) {
	src := newSource("quarto-azul", "https://airbnb.example/gone.ics")
	repo := newFakeRepository(src)
	kept := []BlockedDateRange{{ExternalID: "kept", RoomID: "quarto-azul"}}
	repo.ranges[src.ID] = kept
	inv := &recordingInvalidator{}

	result, err := newTestService(repo, &fakeFetcher{}, inv).SyncSource(context.Background(), src.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.OK() {
		t.Fatal("expected a failed result")
	}
	if len(repo.ranges[src.ID]) != 1 || repo.ranges[src.ID][0].ExternalID != "kept" {
		t.Error("previous ranges must survive a failed fetch")
	}
	if repo.failures[src.ID] == "" {
		t.Error("failure not recorded on the source")
	}
	if len(inv.rooms) != 0 {
		t.Error("cache must not be invalidated when nothing changed")
	}
}

func TestSyncSourceNotFound(t *testing.T) {
	_, err := newTestService(newFakeRepository(), &fakeFetcher{}, nil).SyncSource(context.Background(), uuid.New())
	if !errors.Is(err, ErrSourceNotFound) {
		t.Fatalf("error = %v, want ErrSourceNotFound", err)
	}
}

func TestSyncAllReportStatus(t *testing.T) {
	good := newSource("quarto-azul", "https://airbnb.example/good.ics")
	bad := newSource("suite", "https://booking.example/bad.ics")
	disabled := newSource("suite", "https://booking.example/disabled.ics")
	disabled.Enabled = false

	tests := []struct {
		name    string
		sources []CalendarSource
		want    ReportStatus
		count   int
	}{
		{"all succeed", []CalendarSource{good}, ReportSuccess, 1},
		{"one fails", []CalendarSource{good, bad}, ReportPartial, 2},
		{"all fail", []CalendarSource{bad}, ReportFailed, 1},
		{"disabled skipped", []CalendarSource{good, disabled}, ReportSuccess, 1},
		{"nothing to do", nil, ReportSuccess, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &fakeFetcher{bodies: map[string]string{
				good.URL: feed(event("a", "20240310", "20240312")),
			}}
			report, err := newTestService(newFakeRepository(tt.sources...), fetcher, nil).SyncAll(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if report.Status != tt.want {
				t.Errorf("status = %s, want %s", report.Status, tt.want)
			}
			if len(report.Sources) != tt.count {
				t.Errorf("report covers %d sources, want %d", len(report.Sources), tt.count)
			}
		})
	}
}

func TestSyncAllRejectsConcurrentRun(t *testing.T) {
	src := newSource("quarto-azul", "https://airbnb.example/slow.ics")
	fetcher := &fakeFetcher{
		bodies:  map[string]string{src.URL: feed()},
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	svc := newTestService(newFakeRepository(src), fetcher, nil)

	done := make(chan error, 1)
	go func() {
		_, err := svc.SyncAll(context.Background())
		done <- err
	}()

	select {
	case <-fetcher.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first run never reached the fetcher")
	}

	if _, err := svc.SyncAll(context.Background()); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("second run error = %v, want ErrSyncInProgress", err)
	}

	close(fetcher.block)
	if err := <-done; err != nil {
		t.Fatalf("first run failed: %v", err)
	}
}

func TestAddSource(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo, &fakeFetcher{}, nil)

	src, err := svc.AddSource(context.Background(), CreateSourceRequest{
		RoomID: "suite",
		URL:    " https://www.airbnb.com/calendar/ical/123.ics?s=abc ",
		Origin: "Airbnb",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !src.Enabled || src.Origin != "airbnb" || strings.HasPrefix(src.URL, " ") {
		t.Errorf("source = %+v", src)
	}

	tests := []struct {
		name    string
		req     CreateSourceRequest
		wantErr error
	}{
		{"unknown room", CreateSourceRequest{RoomID: "garage", URL: "https://x.example/a.ics"}, rooms.ErrRoomNotFound},
		{"ftp url", CreateSourceRequest{RoomID: "suite", URL: "ftp://x.example/a.ics"}, ErrInvalidFeedURL},
		{"no host", CreateSourceRequest{RoomID: "suite", URL: "https:///a.ics"}, ErrInvalidFeedURL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.AddSource(context.Background(), tt.req); !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAddSourceDuplicate(t *testing.T) {
	repo := newFakeRepository()
	repo.createErr = fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	_, err := newTestService(repo, &fakeFetcher{}, nil).AddSource(context.Background(), CreateSourceRequest{
		RoomID: "suite", URL: "https://x.example/a.ics", Origin: "vrbo",
	})
	if !errors.Is(err, ErrDuplicateURL) {
		t.Fatalf("error = %v, want ErrDuplicateURL", err)
	}
}

func TestRemoveSourceInvalidatesRoom(t *testing.T) {
	src := newSource("suite", "https://x.example/a.ics")
	repo := newFakeRepository(src)
	inv := &recordingInvalidator{}
	if err := newTestService(repo, &fakeFetcher{}, inv).RemoveSource(context.Background(), src.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := repo.sources[src.ID]; ok {
		t.Error("source not removed")
	}
	if len(inv.rooms) != 1 || inv.rooms[0] != "suite" {
		t.Errorf("invalidated rooms = %v", inv.rooms)
	}
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.ics":
			w.Header().Set("Content-Type", "text/calendar")
			_, _ = w.Write([]byte(feed(event("a", "20240310", "20240312"))))
		case "/big.ics":
			_, _ = w.Write([]byte(strings.Repeat("X", 2048)))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(2*time.Second, 1024)

	body, err := f.Fetch(context.Background(), srv.URL+"/ok.ics")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if events, _, err := Parse(body); err != nil || len(events) != 1 {
		t.Errorf("fetched feed parsed to %d events", len(events))
	}

	if _, err := f.Fetch(context.Background(), srv.URL+"/missing.ics"); !errors.Is(err, ErrFetch) {
		t.Errorf("404 error = %v, want ErrFetch", err)
	}
	if _, err := f.Fetch(context.Background(), srv.URL+"/big.ics"); !errors.Is(err, ErrFetch) {
		t.Errorf("oversized error = %v, want ErrFetch", err)
	}
}

func TestHTTPFetcherHidesURL(t *testing.T) {
	f := NewHTTPFetcher(time.Second, 1024)
	_, err := f.Fetch(context.Background(), "http://127.0.0.1:1/feed.ics?token=s3cret")
	if !errors.Is(err, ErrFetch) {
		t.Fatalf("error = %v, want ErrFetch", err)
	}
	if strings.Contains(err.Error(), "s3cret") {
		t.Errorf("error leaks the feed token: %v", err)
	}
}
