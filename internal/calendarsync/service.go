package calendarsync

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"lodging/internal/daterange"
	"lodging/internal/shared/pgerrors"
	"lodging/pkg/logger"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

var (
	ErrSyncInProgress = errors.New("a calendar sync is already running")
	tracer            = otel.Tracer("lodging/calendarsync")
)

type Service interface {
	AddSource(ctx context.Context, req CreateSourceRequest) (*CalendarSource, error)
	ListSources(ctx context.Context, roomID string) ([]CalendarSource, error)
	RemoveSource(ctx context.Context, id uuid.UUID) error
	// SyncSource syncs one source regardless of its enabled flag.
	SyncSource(ctx context.Context, id uuid.UUID) (*SourceResult, error)
	// SyncAll syncs every enabled source. One failing source never aborts
	// the others; an error is returned only when the run could not start.
	SyncAll(ctx context.Context) (*Report, error)
}

type RoomValidator interface {
	Validate(ctx context.Context, id string) error
}

// Invalidator drops cached answers derived from a room's occupancy.
type Invalidator interface {
	InvalidateRoom(ctx context.Context, roomID string)
}

type Options struct {
	Workers int
	Now     func() time.Time
}

type service struct {
	repo        Repository
	fetcher     Fetcher
	rooms       RoomValidator
	invalidator Invalidator
	workers     int
	now         func() time.Time
	running     sync.Mutex
}

// NewService wires the sync service. invalidator may be nil.
func NewService(repo Repository, fetcher Fetcher, roomValidator RoomValidator, invalidator Invalidator, opts Options) Service {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &service{
		repo:        repo,
		fetcher:     fetcher,
		rooms:       roomValidator,
		invalidator: invalidator,
		workers:     opts.Workers,
		now:         opts.Now,
	}
}

func (s *service) AddSource(ctx context.Context, req CreateSourceRequest) (*CalendarSource, error) {
	if err := s.rooms.Validate(ctx, req.RoomID); err != nil {
		return nil, err
	}
	u, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidFeedURL
	}

	source := &CalendarSource{
		ID:      uuid.New(),
		RoomID:  req.RoomID,
		URL:     u.String(),
		Origin:  strings.ToLower(strings.TrimSpace(req.Origin)),
		Enabled: req.Enabled == nil || *req.Enabled,
	}
	if err := s.repo.CreateSource(ctx, source); err != nil {
		if pgerrors.IsUniqueViolation(err) {
			return nil, ErrDuplicateURL
		}
		return nil, fmt.Errorf("failed to create calendar source: %w", err)
	}
	return source, nil
}

func (s *service) ListSources(ctx context.Context, roomID string) ([]CalendarSource, error) {
	return s.repo.ListSources(ctx, roomID)
}

func (s *service) RemoveSource(ctx context.Context, id uuid.UUID) error {
	source, err := s.repo.DeleteSource(ctx, id)
	if err != nil {
		return err
	}
	s.invalidate(ctx, source.RoomID)
	return nil
}

func (s *service) SyncSource(ctx context.Context, id uuid.UUID) (*SourceResult, error) {
	source, err := s.repo.GetSource(ctx, id)
	if err != nil {
		return nil, err
	}
	result := s.syncOne(ctx, source)
	return &result, nil
}

func (s *service) SyncAll(ctx context.Context) (*Report, error) {
	if !s.running.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer s.running.Unlock()

	ctx, span := tracer.Start(ctx, "calendarsync.SyncAll")
	defer span.End()

	report := &Report{StartedAt: s.now().UTC()}
	sources, err := s.repo.ListEnabledSources(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list sources")
		return nil, fmt.Errorf("failed to list calendar sources: %w", err)
	}

	results := make([]SourceResult, len(sources))
	var g errgroup.Group
	g.SetLimit(s.workers)
	for i := range sources {
		g.Go(func() error {
			results[i] = s.syncOne(ctx, &sources[i])
			return nil
		})
	}
	_ = g.Wait()

	report.Sources = results
	report.Status = summarize(results)
	report.FinishedAt = s.now().UTC()
	span.SetAttributes(
		attribute.Int("calendarsync.sources", len(sources)),
		attribute.String("calendarsync.status", string(report.Status)),
	)
	return report, nil
}

// syncOne runs fetch, parse, filter and replace for a single source.
func (s *service) syncOne(ctx context.Context, source *CalendarSource) SourceResult {
	ctx, span := tracer.Start(ctx, "calendarsync.SyncSource")
	defer span.End()
	span.SetAttributes(
		attribute.String("calendarsync.source_id", source.ID.String()),
		attribute.String("calendarsync.room_id", source.RoomID),
	)

	result := SourceResult{SourceID: source.ID, RoomID: source.RoomID, Origin: source.Origin}
	fail := func(err error) SourceResult {
		result.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "sync failed")
		if recErr := s.repo.RecordFailure(ctx, source.ID, result.Error); recErr != nil {
			logger.GetDefault().WithError(recErr).Warn("failed to record calendar sync failure", "source_id", source.ID.String())
		}
		logger.GetDefault().LogCalendarSynced(ctx, source.ID.String(), source.RoomID, 0, 0, err)
		return result
	}

	body, err := s.fetcher.Fetch(ctx, source.URL)
	if err != nil {
		return fail(err)
	}

	events, skipped, err := Parse(body)
	if err != nil {
		return fail(err)
	}
	now := s.now().UTC()
	ranges, expired, invalid := s.filter(source, events, daterange.Truncate(now), now)
	result.Skipped = skipped + invalid
	result.Expired = expired

	if err := s.repo.ReplaceBlockedRanges(ctx, source, ranges, now); err != nil {
		return fail(fmt.Errorf("failed to store blocked ranges: %w", err))
	}

	result.Events = len(ranges)
	result.SyncedAt = &now
	s.invalidate(ctx, source.RoomID)
	span.SetAttributes(attribute.Int("calendarsync.events", result.Events))
	logger.GetDefault().LogCalendarSynced(ctx, source.ID.String(), source.RoomID, result.Events, result.Skipped, nil)
	return result
}

// filter drops events that ended before today and events whose end is not
// after their start.
func (s *service) filter(source *CalendarSource, events []Event, today, now time.Time) (ranges []BlockedDateRange, expired, invalid int) {
	ranges = make([]BlockedDateRange, 0, len(events))
	for _, ev := range events {
		if ev.End.Before(today) {
			expired++
			continue
		}
		if !ev.End.After(ev.Start) {
			invalid++
			continue
		}
		ranges = append(ranges, BlockedDateRange{
			CalendarID: source.ID,
			RoomID:     source.RoomID,
			StartDate:  ev.Start,
			EndDate:    ev.End,
			Origin:     source.Origin,
			ExternalID: truncate(ev.UID, 512),
			Summary:    truncate(ev.Summary, 512),
			CreatedAt:  now,
		})
	}
	return ranges, expired, invalid
}

func (s *service) invalidate(ctx context.Context, roomID string) {
	if s.invalidator != nil {
		s.invalidator.InvalidateRoom(ctx, roomID)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Cut on a rune boundary.
	for n > 0 && (s[n]&0xC0) == 0x80 {
		n--
	}
	return s[:n]
}
