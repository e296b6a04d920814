package payments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lodging/internal/daterange"
	"lodging/internal/reservations"
	"lodging/internal/shared/config"

	"github.com/google/uuid"
)

// fakeRepository applies Tx writes to a copy of the state and keeps them
// only when fn succeeds, like a transaction.
type fakeRepository struct {
	mu           sync.Mutex
	reservations map[uuid.UUID]*reservations.Reservation
	sessions     map[string]*PaymentSession
	events       []PaymentEvent
	lockErr      error
	failCreate   error
}

func newFakeRepository(rs ...reservations.Reservation) *fakeRepository {
	f := &fakeRepository{
		reservations: make(map[uuid.UUID]*reservations.Reservation),
		sessions:     make(map[string]*PaymentSession),
	}
	for i := range rs {
		r := rs[i]
		f.reservations[r.ID] = &r
	}
	return f
}

func (f *fakeRepository) WithReservationLock(_ context.Context, id uuid.UUID, fn func(tx Tx, r *reservations.Reservation) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lockErr != nil {
		return f.lockErr
	}
	r, ok := f.reservations[id]
	if !ok {
		return reservations.ErrReservationNotFound
	}
	tx := &fakeTx{repo: f, sessions: make(map[string]*PaymentSession)}
	snapshot := *r
	if err := fn(tx, &snapshot); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (f *fakeRepository) GetSession(_ context.Context, token string) (*PaymentSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[token]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeRepository) ListEvents(_ context.Context, reservationID uuid.UUID) ([]PaymentEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []PaymentEvent
	for _, e := range f.events {
		if e.ReservationID == reservationID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeRepository) eventTypes() []EventType {
	out := make([]EventType, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.EventType)
	}
	return out
}

type fakeTx struct {
	repo      *fakeRepository
	sessions  map[string]*PaymentSession
	pointer   map[uuid.UUID]string
	confirmed map[uuid.UUID]time.Time
	events    []PaymentEvent
}

func (t *fakeTx) GetSession(token string) (*PaymentSession, error) {
	if s, ok := t.sessions[token]; ok {
		cp := *s
		return &cp, nil
	}
	s, ok := t.repo.sessions[token]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (t *fakeTx) CreateSession(s *PaymentSession) error {
	if t.repo.failCreate != nil {
		return t.repo.failCreate
	}
	cp := *s
	t.sessions[s.Token] = &cp
	return nil
}

func (t *fakeTx) FinalizeSession(s *PaymentSession) error {
	existing, err := t.GetSession(s.Token)
	if err != nil {
		return err
	}
	if existing.Status.IsTerminal() {
		return errors.New("already finalized")
	}
	cp := *s
	t.sessions[s.Token] = &cp
	return nil
}

func (t *fakeTx) SetReservationSession(id uuid.UUID, token string) error {
	if t.pointer == nil {
		t.pointer = make(map[uuid.UUID]string)
	}
	t.pointer[id] = token
	return nil
}

func (t *fakeTx) ConfirmReservation(id uuid.UUID, at time.Time) error {
	if t.confirmed == nil {
		t.confirmed = make(map[uuid.UUID]time.Time)
	}
	t.confirmed[id] = at
	return nil
}

func (t *fakeTx) AppendEvent(e *PaymentEvent) error {
	e.ID = uint(len(t.repo.events) + len(t.events) + 1)
	t.events = append(t.events, *e)
	return nil
}

func (t *fakeTx) commit() {
	for token, s := range t.sessions {
		t.repo.sessions[token] = s
	}
	for id, token := range t.pointer {
		token := token
		t.repo.reservations[id].PaymentSessionToken = &token
	}
	for id, at := range t.confirmed {
		r := t.repo.reservations[id]
		if r.Status == reservations.StatusPending {
			at := at
			r.Status = reservations.StatusConfirmed
			r.ConfirmedAt = &at
		}
	}
	t.repo.events = append(t.repo.events, t.events...)
}

type recordingPublisher struct {
	messages []*EventMessage
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, msg *EventMessage) error {
	p.messages = append(p.messages, msg)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

type recordingInvalidator struct {
	rooms []string
}

func (r *recordingInvalidator) InvalidateRoom(_ context.Context, roomID string) {
	r.rooms = append(r.rooms, roomID)
}

var testNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func pendingReservation() reservations.Reservation {
	return reservations.Reservation{
		ID:           uuid.New(),
		Number:       "R240301-ABC123",
		RoomID:       "dunas",
		CheckIn:      daterange.Date(2024, 3, 10),
		CheckOut:     daterange.Date(2024, 3, 13),
		Status:       reservations.StatusPending,
		GuestName:    "Ana Gonçalves",
		GuestEmail:   "ana@example.com",
		GuestAddress: "Praça do Comércio",
		Amount:       690000,
		Currency:     "EUR",
	}
}

type harness struct {
	repo        *fakeRepository
	publisher   *recordingPublisher
	invalidator *recordingInvalidator
	coordinator Coordinator
	cfg         *config.PaymentConfig
}

func newHarness(t *testing.T, rs ...reservations.Reservation) *harness {
	t.Helper()
	h := &harness{
		repo:        newFakeRepository(rs...),
		publisher:   &recordingPublisher{},
		invalidator: &recordingInvalidator{},
		cfg:         testPaymentConfig(),
	}
	c, err := NewCoordinator(h.repo, h.cfg, h.publisher, h.invalidator)
	if err != nil {
		t.Fatalf("NewCoordinator() error: %v", err)
	}
	c.(*coordinator).now = func() time.Time { return testNow }
	h.coordinator = c
	return h
}

func approved(token string) Callback {
	return Callback{
		MerchantSession: token,
		ResponseCode:    "000",
		Amount:          "6900.00",
		Raw:             map[string]string{"MerchantSession": token, "ResponseCode": "000"},
	}
}

func TestNewCoordinatorRequiresCredentials(t *testing.T) {
	if _, err := NewCoordinator(newFakeRepository(), nil, nil, nil); !errors.Is(err, config.ErrMissingCredentials) {
		t.Errorf("nil config error = %v", err)
	}
	cfg := testPaymentConfig()
	cfg.PosAuthCode = ""
	if _, err := NewCoordinator(newFakeRepository(), cfg, nil, nil); !errors.Is(err, config.ErrMissingCredentials) {
		t.Errorf("missing secret error = %v", err)
	}
}

func TestInitiate(t *testing.T) {
	r := pendingReservation()
	h := newHarness(t, r)

	payload, err := h.coordinator.Initiate(context.Background(), r.ID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.Fields["Amount"] != "6900.00" || payload.Fields["FingerPrint"] == "" {
		t.Errorf("payload fields = %v", payload.Fields)
	}
	if n := len(payload.MerchantRef); n == 0 || n > 15 {
		t.Errorf("merchant ref %q must be 1..15 characters", payload.MerchantRef)
	}

	session := h.repo.sessions[payload.SessionToken]
	if session == nil || session.Status != SessionInitiated || session.Amount != 690000 {
		t.Fatalf("session = %+v", session)
	}
	if !h.repo.reservations[r.ID].HasSession(payload.SessionToken) {
		t.Error("reservation does not point at the new session")
	}
	if got := h.repo.eventTypes(); len(got) != 1 || got[0] != EventPaymentInitiated {
		t.Errorf("events = %v", got)
	}
	if len(h.publisher.messages) != 1 || h.publisher.messages[0].GuestEmail != "ana@example.com" {
		t.Errorf("published = %+v", h.publisher.messages)
	}
}

func TestInitiateSupersedesPreviousSession(t *testing.T) {
	r := pendingReservation()
	h := newHarness(t, r)

	first, err := h.coordinator.Initiate(context.Background(), r.ID, nil)
	if err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	second, err := h.coordinator.Initiate(context.Background(), r.ID, nil)
	if err != nil {
		t.Fatalf("second attempt: %v", err)
	}
	if first.SessionToken == second.SessionToken || first.MerchantRef == second.MerchantRef {
		t.Fatal("attempts must get distinct tokens and references")
	}

	result, err := h.coordinator.HandleCallback(context.Background(), approved(first.SessionToken))
	if !errors.Is(err, ErrSessionSuperseded) {
		t.Fatalf("old session callback error = %v, want ErrSessionSuperseded", err)
	}
	if result.Outcome != OutcomeRejected {
		t.Errorf("outcome = %s", result.Outcome)
	}
	if h.repo.reservations[r.ID].Status != reservations.StatusPending {
		t.Error("superseded callback must not confirm the reservation")
	}
	if h.repo.sessions[first.SessionToken].Status.IsTerminal() {
		t.Error("superseded callback must not finalize the old session")
	}
}

func TestInitiateErrors(t *testing.T) {
	confirmed := pendingReservation()
	confirmed.Status = reservations.StatusConfirmed
	free := pendingReservation()
	free.Amount = 0

	h := newHarness(t, confirmed, free)
	tests := []struct {
		name    string
		id      uuid.UUID
		wantErr error
	}{
		{"unknown reservation", uuid.New(), reservations.ErrReservationNotFound},
		{"already confirmed", confirmed.ID, ErrNotPayable},
		{"zero amount", free.ID, ErrProtocol},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.coordinator.Initiate(context.Background(), tt.id, nil); !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if len(h.repo.sessions) != 0 || len(h.repo.events) != 0 {
		t.Error("failed attempts must not leave sessions or events behind")
	}
	if len(h.publisher.messages) != 0 {
		t.Error("nothing should be published for failed attempts")
	}
}

func TestInitiateStorageFailureLeavesReservationUntouched(t *testing.T) {
	r := pendingReservation()
	h := newHarness(t, r)
	h.repo.failCreate = errors.New("disk full")

	if _, err := h.coordinator.Initiate(context.Background(), r.ID, nil); err == nil {
		t.Fatal("expected storage error")
	}
	if h.repo.reservations[r.ID].PaymentSessionToken != nil {
		t.Error("reservation pointer changed despite failed insert")
	}
}

func TestInitiateConcurrentUpdate(t *testing.T) {
	r := pendingReservation()
	h := newHarness(t, r)
	h.repo.lockErr = ErrConcurrentUpdate
	if _, err := h.coordinator.Initiate(context.Background(), r.ID, nil); !errors.Is(err, ErrConcurrentUpdate) {
		t.Fatalf("error = %v, want ErrConcurrentUpdate", err)
	}
}

func TestHandleCallbackSettles(t *testing.T) {
	r := pendingReservation()
	h := newHarness(t, r)
	payload, _ := h.coordinator.Initiate(context.Background(), r.ID, nil)

	result, err := h.coordinator.HandleCallback(context.Background(), approved(payload.SessionToken))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != OutcomeSettled {
		t.Fatalf("outcome = %s (%s)", result.Outcome, result.Reason)
	}

	session := h.repo.sessions[payload.SessionToken]
	if session.Status != SessionSettled || session.FinalizedAt == nil || session.ResponseCode != "000" {
		t.Errorf("session = %+v", session)
	}
	if got := h.repo.reservations[r.ID]; got.Status != reservations.StatusConfirmed || got.ConfirmedAt == nil {
		t.Errorf("reservation status = %s", got.Status)
	}
	if len(h.invalidator.rooms) != 1 || h.invalidator.rooms[0] != "dunas" {
		t.Errorf("invalidated = %v", h.invalidator.rooms)
	}
	last := h.publisher.messages[len(h.publisher.messages)-1]
	if last.EventType != EventPaymentSettled || last.CheckIn != "2024-03-10" {
		t.Errorf("published = %+v", last)
	}
}

func TestHandleCallbackReplayIsNoOp(t *testing.T) {
	r := pendingReservation()
	h := newHarness(t, r)
	payload, _ := h.coordinator.Initiate(context.Background(), r.ID, nil)

	if _, err := h.coordinator.HandleCallback(context.Background(), approved(payload.SessionToken)); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	settled := *h.repo.sessions[payload.SessionToken]

	// A replay carrying a different outcome must not change anything.
	replay := approved(payload.SessionToken)
	replay.ResponseCode = "999"
	replay.Amount = "1.00"
	result, err := h.coordinator.HandleCallback(context.Background(), replay)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if result.Outcome != OutcomeReplayed {
		t.Errorf("outcome = %s", result.Outcome)
	}
	after := h.repo.sessions[payload.SessionToken]
	if after.Status != settled.Status || after.Amount != settled.Amount || after.ResponseCode != settled.ResponseCode {
		t.Errorf("replay changed the session: %+v", after)
	}
	want := []EventType{EventPaymentInitiated, EventPaymentSettled, EventCallbackReplayed}
	got := h.repo.eventTypes()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestHandleCallbackFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cb *Callback)
		reason string
	}{
		{"declined", func(cb *Callback) { cb.ResponseCode = "116"; cb.ResponseMessage = "insufficient funds" }, "gateway response 116: insufficient funds"},
		{"amount mismatch", func(cb *Callback) { cb.Amount = "69.00" }, "amount mismatch"},
		{"merchant ref mismatch", func(cb *Callback) { cb.MerchantRef = "OTHER" }, "merchant reference mismatch"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := pendingReservation()
			h := newHarness(t, r)
			payload, _ := h.coordinator.Initiate(context.Background(), r.ID, nil)

			cb := approved(payload.SessionToken)
			tt.mutate(&cb)
			result, err := h.coordinator.HandleCallback(context.Background(), cb)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Outcome != OutcomeFailed || result.Reason != tt.reason {
				t.Errorf("result = %+v, want failed with %q", result, tt.reason)
			}
			if h.repo.sessions[payload.SessionToken].Status != SessionFailed {
				t.Error("session not marked failed")
			}
			if h.repo.reservations[r.ID].Status != reservations.StatusPending {
				t.Error("failed payment must leave the reservation pending")
			}
		})
	}
}

func TestHandleCallbackUnknownAndMissingToken(t *testing.T) {
	h := newHarness(t)
	if _, err := h.coordinator.HandleCallback(context.Background(), Callback{}); !errors.Is(err, ErrMissingSessionToken) {
		t.Errorf("missing token error = %v", err)
	}
	result, err := h.coordinator.HandleCallback(context.Background(), approved("nope"))
	if !errors.Is(err, ErrUnknownSession) {
		t.Errorf("unknown token error = %v", err)
	}
	if result == nil || result.Outcome != OutcomeRejected {
		t.Errorf("result = %+v", result)
	}
	if len(h.repo.events) != 0 {
		t.Error("no event can be written without a known reservation")
	}
}

func TestHandleCallbackFingerprint(t *testing.T) {
	r := pendingReservation()
	h := newHarness(t, r)
	payload, _ := h.coordinator.Initiate(context.Background(), r.ID, nil)
	session := h.repo.sessions[payload.SessionToken]

	cbTime := testNow.Add(5 * time.Minute)
	valid, err := Fingerprint(FingerprintInput{
		PosAuthCode:     h.cfg.PosAuthCode,
		Timestamp:       cbTime,
		Amount:          session.Amount,
		MerchantRef:     session.MerchantRef,
		MerchantSession: session.Token,
		TerminalID:      h.cfg.TerminalID,
		CurrencyCode:    session.Currency,
		TransactionType: session.TransactionType,
	})
	if err != nil {
		t.Fatalf("Fingerprint() error: %v", err)
	}

	bad := approved(payload.SessionToken)
	bad.FingerPrint = "forged"
	bad.TimeStamp = cbTime.Format(TimestampLayout)
	if _, err := h.coordinator.HandleCallback(context.Background(), bad); !errors.Is(err, ErrFingerprintMismatch) {
		t.Fatalf("forged callback error = %v", err)
	}
	if h.repo.sessions[payload.SessionToken].Status.IsTerminal() {
		t.Fatal("forged callback finalized the session")
	}

	good := approved(payload.SessionToken)
	good.FingerPrint = valid
	good.TimeStamp = cbTime.Format(TimestampLayout)
	result, err := h.coordinator.HandleCallback(context.Background(), good)
	if err != nil || result.Outcome != OutcomeSettled {
		t.Fatalf("signed callback: result=%+v err=%v", result, err)
	}
}

func TestHandleCallbackRequiresFingerprintWhenConfigured(t *testing.T) {
	r := pendingReservation()
	h := newHarness(t, r)
	h.cfg.RequireCallbackFingerprint = true
	payload, _ := h.coordinator.Initiate(context.Background(), r.ID, nil)

	if _, err := h.coordinator.HandleCallback(context.Background(), approved(payload.SessionToken)); !errors.Is(err, ErrFingerprintMismatch) {
		t.Fatalf("unsigned callback error = %v, want ErrFingerprintMismatch", err)
	}
}

func TestHandleCallbackForCancelledReservation(t *testing.T) {
	r := pendingReservation()
	h := newHarness(t, r)
	payload, _ := h.coordinator.Initiate(context.Background(), r.ID, nil)
	h.repo.reservations[r.ID].Status = reservations.StatusCancelled

	result, err := h.coordinator.HandleCallback(context.Background(), approved(payload.SessionToken))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != OutcomeSettled {
		t.Errorf("outcome = %s", result.Outcome)
	}
	if h.repo.reservations[r.ID].Status != reservations.StatusCancelled {
		t.Error("a cancelled reservation must stay cancelled")
	}
}

func TestPublishFailureDoesNotFailPayment(t *testing.T) {
	r := pendingReservation()
	h := newHarness(t, r)
	h.publisher.err = errors.New("broker down")
	if _, err := h.coordinator.Initiate(context.Background(), r.ID, nil); err != nil {
		t.Fatalf("publish failure leaked: %v", err)
	}
}
