package store

import (
	"context"
	"sync"

	"qr_attendance_backend/models"
)

// Loader reads the full, ordered record list of a session.
type Loader func(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error)

// Feed turns change notifications into full-list deliveries for record
// subscriptions. Each subscription owns one goroutine; notifications that
// arrive while a delivery is in flight collapse into a single reload.
type Feed struct {
	load Loader

	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	closed bool
}

func NewFeed(load Loader) *Feed {
	return &Feed{
		load: load,
		subs: make(map[string]map[*Subscription]struct{}),
	}
}

// Subscription is a live handle on a session's records.
type Subscription struct {
	feed      *Feed
	sessionID string
	onUpdate  func([]models.AttendanceRecord)
	onError   func(error)

	kick    chan struct{}
	failure chan error
	quit    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// Subscribe registers callbacks for sessionID and schedules the initial
// delivery. Callbacks run on the subscription's own goroutine, one at a time.
func (f *Feed) Subscribe(sessionID string, onUpdate func([]models.AttendanceRecord), onError func(error)) *Subscription {
	s := &Subscription{
		feed:      f,
		sessionID: sessionID,
		onUpdate:  onUpdate,
		onError:   onError,
		kick:      make(chan struct{}, 1),
		failure:   make(chan error, 1),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	s.kick <- struct{}{}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		s.failure <- models.ErrStoreUnavailable
		go s.run()
		return s
	}
	if f.subs[sessionID] == nil {
		f.subs[sessionID] = make(map[*Subscription]struct{})
	}
	f.subs[sessionID][s] = struct{}{}
	f.mu.Unlock()

	go s.run()
	return s
}

// Publish schedules a reload for every subscription on sessionID.
func (f *Feed) Publish(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for s := range f.subs[sessionID] {
		s.notify()
	}
}

// PublishAll schedules a reload for every subscription, used after the
// change source may have missed events.
func (f *Feed) PublishAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, set := range f.subs {
		for s := range set {
			s.notify()
		}
	}
}

// Close fails every live subscription and rejects new ones.
func (f *Feed) Close(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for _, set := range f.subs {
		for s := range set {
			s.fail(err)
		}
	}
}

func (f *Feed) remove(s *Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	set := f.subs[s.sessionID]
	delete(set, s)
	if len(set) == 0 {
		delete(f.subs, s.sessionID)
	}
}

func (f *Feed) subscribers(sessionID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[sessionID])
}

func (s *Subscription) notify() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Subscription) fail(err error) {
	select {
	case s.failure <- err:
	default:
	}
}

func (s *Subscription) run() {
	defer close(s.done)
	defer s.feed.remove(s)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-s.quit:
			return
		case err := <-s.failure:
			s.deliverError(err)
			return
		case <-s.kick:
		}

		records, err := s.feed.load(ctx, s.sessionID)
		select {
		case <-s.quit:
			return
		default:
		}
		if err != nil {
			s.deliverError(err)
			return
		}
		if s.onUpdate != nil {
			s.onUpdate(records)
		}
	}
}

func (s *Subscription) deliverError(err error) {
	if s.onError != nil {
		s.onError(err)
	}
}

// SessionID returns the session the subscription follows.
func (s *Subscription) SessionID() string {
	return s.sessionID
}

// Done is closed once the subscription stopped, either after Unsubscribe or
// after its error callback ran.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Unsubscribe stops deliveries and waits until no callback is running.
// It must not be called from inside a callback of the same subscription.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() { close(s.quit) })
	<-s.done
}
