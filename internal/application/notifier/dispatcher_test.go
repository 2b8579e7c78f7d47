package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgemc/bridge-community-bot/internal/domain/event"
)

// fakeEventRepo is an in-memory event.Repository with claim semantics.
type fakeEventRepo struct {
	mu     sync.Mutex
	events []*event.Event
	nextID int64

	batchErr error
}

func (r *fakeEventRepo) add(kind, payload string) *event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	e := &event.Event{
		ID:        r.nextID,
		Kind:      mustKind(kind),
		RawKind:   kind,
		Payload:   []byte(payload),
		State:     event.StatePending,
		CreatedAt: time.Now().Add(time.Duration(r.nextID) * time.Millisecond),
	}
	r.events = append(r.events, e)
	return e
}

func mustKind(raw string) event.Kind {
	k, _ := event.ParseKind(raw)
	return k
}

func (r *fakeEventRepo) PendingBatch(ctx context.Context, limit int) ([]*event.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.batchErr != nil {
		return nil, r.batchErr
	}
	var out []*event.Event
	for _, e := range r.events {
		if e.State == event.StatePending {
			cp := *e
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeEventRepo) transition(id int64, to event.State) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ID != id {
			continue
		}
		if e.State != event.StatePending {
			return false, nil
		}
		e.State = to
		now := time.Now()
		e.ProcessedAt = &now
		return true, nil
	}
	return false, event.ErrEventNotFound
}

func (r *fakeEventRepo) MarkProcessed(ctx context.Context, id int64) (bool, error) {
	return r.transition(id, event.StateProcessed)
}

func (r *fakeEventRepo) MarkFailed(ctx context.Context, id int64) (bool, error) {
	return r.transition(id, event.StateFailed)
}

func (r *fakeEventRepo) Insert(ctx context.Context, e *event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	e.ID = r.nextID
	r.events = append(r.events, e)
	return nil
}

func (r *fakeEventRepo) stateOf(id int64) event.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ID == id {
			return e.State
		}
	}
	return ""
}

type recordingHandler struct {
	mu    sync.Mutex
	seen  []*event.Event
	err   error
	block chan struct{}
}

func (h *recordingHandler) Handle(ctx context.Context, e *event.Event, payload event.Payload) error {
	h.mu.Lock()
	h.seen = append(h.seen, e)
	h.mu.Unlock()
	if h.block != nil {
		<-h.block
	}
	return h.err
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seen)
}

func TestDispatchRoutesByKindAndMarksProcessed(t *testing.T) {
	repo := &fakeEventRepo{}
	link := repo.add("LINK", `{"minecraft_username":"steve"}`)
	rankUp := repo.add("RANK_UP", `{"new_rank_name":"Bridge Maestro","new_rank_level":5}`)

	linkHandler := &recordingHandler{}
	rankHandler := &recordingHandler{}

	d := NewDispatcher(repo, 10, nil)
	d.RegisterHandler(event.KindLink, linkHandler)
	d.RegisterHandler(event.KindRankUp, rankHandler)

	n, err := d.Dispatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, 1, linkHandler.count())
	assert.Equal(t, 1, rankHandler.count())
	assert.Equal(t, event.StateProcessed, repo.stateOf(link.ID))
	assert.Equal(t, event.StateProcessed, repo.stateOf(rankUp.ID))
}

func TestDispatchUnknownKindIsDroppedAsProcessed(t *testing.T) {
	repo := &fakeEventRepo{}
	e := repo.add("SOMETHING_NEW", `{}`)

	d := NewDispatcher(repo, 10, nil)
	_, err := d.Dispatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, event.StateProcessed, repo.stateOf(e.ID))
}

func TestDispatchUndecodablePayloadFails(t *testing.T) {
	repo := &fakeEventRepo{}
	e := repo.add("RANK_UP", `{not json`)

	handler := &recordingHandler{}
	d := NewDispatcher(repo, 10, nil)
	d.RegisterHandler(event.KindRankUp, handler)

	_, err := d.Dispatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, event.StateFailed, repo.stateOf(e.ID))
	assert.Zero(t, handler.count())
}

func TestDispatchHandlerErrorFailsRowOnly(t *testing.T) {
	repo := &fakeEventRepo{}
	bad := repo.add("LINK", `{"minecraft_username":"steve"}`)
	good := repo.add("RANK_UP", `{"new_rank_name":"Bridge Experto","new_rank_level":4}`)

	d := NewDispatcher(repo, 10, nil)
	d.RegisterHandler(event.KindLink, &recordingHandler{err: errors.New("boom")})
	d.RegisterHandler(event.KindRankUp, &recordingHandler{})

	n, err := d.Dispatch(context.Background())
	require.NoError(t, err)

	// The failing row does not block the one behind it.
	assert.Equal(t, 2, n)
	assert.Equal(t, event.StateFailed, repo.stateOf(bad.ID))
	assert.Equal(t, event.StateProcessed, repo.stateOf(good.ID))
}

func TestDispatchMissingHandlerMarksProcessed(t *testing.T) {
	repo := &fakeEventRepo{}
	e := repo.add("HIGHSCORE", `{"player_name":"steve"}`)

	d := NewDispatcher(repo, 10, nil)
	_, err := d.Dispatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, event.StateProcessed, repo.stateOf(e.ID))
}

func TestDispatchRespectsBatchSize(t *testing.T) {
	repo := &fakeEventRepo{}
	for range [15]struct{}{} {
		repo.add("LINK", `{}`)
	}

	d := NewDispatcher(repo, 10, nil)
	d.RegisterHandler(event.KindLink, &recordingHandler{})

	n, err := d.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	n, err = d.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestDispatchOverlappingCycleIsNoOp(t *testing.T) {
	repo := &fakeEventRepo{}
	repo.add("LINK", `{}`)

	handler := &recordingHandler{block: make(chan struct{})}
	d := NewDispatcher(repo, 10, nil)
	d.RegisterHandler(event.KindLink, handler)

	done := make(chan int, 1)
	go func() {
		n, _ := d.Dispatch(context.Background())
		done <- n
	}()

	// Wait until the first cycle is inside the handler.
	assert.Eventually(t, func() bool {
		return handler.count() == 1
	}, time.Second, 5*time.Millisecond)

	// The second cycle must return immediately, processing nothing.
	n, err := d.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, handler.count())

	close(handler.block)
	assert.Equal(t, 1, <-done)
}

func TestDispatchPropagatesStoreFailure(t *testing.T) {
	repo := &fakeEventRepo{batchErr: errors.New("connection refused")}

	d := NewDispatcher(repo, 10, nil)
	_, err := d.Dispatch(context.Background())
	assert.Error(t, err)
}

func TestDispatchLostClaimIsLoggedNotFatal(t *testing.T) {
	repo := &fakeEventRepo{}
	e := repo.add("LINK", `{}`)

	d := NewDispatcher(repo, 10, nil)
	// A rival instance transitions the row while the handler is still
	// running; the dispatcher's own claim must lose quietly.
	d.RegisterHandler(event.KindLink, HandlerFunc(func(ctx context.Context, ev *event.Event, _ event.Payload) error {
		claimed, err := repo.MarkProcessed(ctx, ev.ID)
		require.NoError(t, err)
		require.True(t, claimed)
		return nil
	}))

	n, err := d.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, event.StateProcessed, repo.stateOf(e.ID))
}

func TestConcurrentClaimHasOneWinner(t *testing.T) {
	repo := &fakeEventRepo{}
	e := repo.add("LINK", `{}`)

	var wins int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for range [8]struct{}{} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := repo.MarkProcessed(context.Background(), e.ID)
			assert.NoError(t, err)
			if claimed {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, event.StateProcessed, repo.stateOf(e.ID))
}
