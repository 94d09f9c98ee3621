// Package verification runs the check-in flow for one student: scan the
// session QR code, capture a face, match it against the enrolled template
// and record attendance.
package verification

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"qr_attendance_backend/biometric"
	"qr_attendance_backend/models"
)

const (
	DefaultVerifyTimeout = 5 * time.Second
	DefaultResultDisplay = 1500 * time.Millisecond
)

var (
	ErrAttemptInProgress  = errors.New("an attempt is already in progress")
	ErrNotAwaitingCapture = errors.New("machine is not waiting for a face capture")
	ErrStopped            = errors.New("machine is not running")
	ErrAlreadyRunning     = errors.New("machine is already running")
)

type Options struct {
	// StudentID is the authenticated student checking in.
	StudentID string
	// VerifyTimeout bounds embedding extraction and comparison.
	VerifyTimeout time.Duration
	// ResultDisplay is how long Success is held before returning to Idle.
	ResultDisplay time.Duration
	// Observer receives every status change, in order, from the machine's
	// goroutine. It must not block or call back into the machine.
	Observer func(Status)
	Now      func() time.Time
}

type attempt struct {
	id        uint64
	ctx       context.Context
	cancel    context.CancelFunc
	checking  bool
	detecting bool
	sessionID string
	capture   image.Image
	reset     *time.Timer
}

// Machine sequences one attempt at a time. All state transitions happen on
// the goroutine running Run; collaborator calls run on their own goroutines
// and report back as events tagged with the attempt id, so results from an
// attempt that is no longer current are dropped.
type Machine struct {
	deps Deps
	opts Options

	events chan event
	frames chan frame
	done   chan struct{}

	// scanning holds the id of the attempt accepting frames, or 0.
	scanning atomic.Uint64
	running  atomic.Bool

	mu     sync.RWMutex
	status Status

	// owned by the Run goroutine
	runCtx context.Context
	att    *attempt
	seq    uint64
}

type frame struct {
	attempt uint64
	img     image.Image
}

func NewMachine(deps Deps, opts Options) (*Machine, error) {
	if deps.Sessions == nil || deps.Students == nil || deps.Recorder == nil ||
		deps.Detector == nil || deps.Extractor == nil || deps.Decoder == nil {
		return nil, errors.New("verification: missing collaborator")
	}
	if deps.Matcher == nil {
		v, err := biometric.NewVerifier(biometric.DefaultThreshold)
		if err != nil {
			return nil, err
		}
		deps.Matcher = v
	}
	if strings.TrimSpace(opts.StudentID) == "" {
		return nil, errors.New("verification: student id is required")
	}
	if opts.VerifyTimeout <= 0 {
		opts.VerifyTimeout = DefaultVerifyTimeout
	}
	if opts.ResultDisplay <= 0 {
		opts.ResultDisplay = DefaultResultDisplay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Machine{
		deps:   deps,
		opts:   opts,
		events: make(chan event, 16),
		frames: make(chan frame),
		done:   make(chan struct{}),
		status: Status{Phase: PhaseIdle},
	}, nil
}

// Run drives the machine until ctx is cancelled. It must be running for any
// other method to make progress, and may be called only once.
func (m *Machine) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	m.runCtx = ctx

	scanCtx, stopScanner := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.scan(scanCtx)
	}()
	defer func() {
		m.discard()
		stopScanner()
		close(m.done)
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-m.events:
			m.handle(ev)
		}
	}
}

// Start begins a new attempt. It fails with ErrAttemptInProgress unless the
// machine is idle; requests are never queued.
func (m *Machine) Start() error {
	return m.request(func(reply chan error) event { return startEvent{reply: reply} })
}

// SubmitCapture hands a captured frame to face detection.
func (m *Machine) SubmitCapture(img image.Image) error {
	return m.request(func(reply chan error) event { return captureEvent{img: img, reply: reply} })
}

// Abort fails the current attempt with ErrAborted, or ends the success
// display early. It is ignored while the attendance write is in flight.
func (m *Machine) Abort() {
	m.post(abortEvent{})
}

// SubmitFrame offers a camera frame to the QR scanner. The frame is dropped
// and false returned when no attempt is scanning or the scanner is still busy
// with an earlier frame.
func (m *Machine) SubmitFrame(img image.Image) bool {
	id := m.scanning.Load()
	if id == 0 {
		return false
	}
	select {
	case m.frames <- frame{attempt: id, img: img}:
		return true
	default:
		return false
	}
}

func (m *Machine) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Done is closed once Run has returned.
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

func (m *Machine) request(build func(chan error) event) error {
	reply := make(chan error, 1)
	select {
	case m.events <- build(reply):
	case <-m.done:
		return ErrStopped
	}
	select {
	case err := <-reply:
		return err
	case <-m.done:
		return ErrStopped
	}
}

func (m *Machine) post(ev event) {
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

func (m *Machine) handle(ev event) {
	switch ev := ev.(type) {
	case startEvent:
		ev.reply <- m.start()
	case abortEvent:
		m.abort()
	case captureEvent:
		ev.reply <- m.capture(ev.img)
	case payloadEvent:
		m.onPayload(ev)
	case sessionEvent:
		m.onSession(ev)
	case detectedEvent:
		m.onDetected(ev)
	case verifiedEvent:
		m.onVerified(ev)
	case recordedEvent:
		m.onRecorded(ev)
	case resetEvent:
		m.onReset(ev)
	}
}

// current returns the live attempt if it is id and the machine is in phase.
func (m *Machine) current(id uint64, phase Phase) *attempt {
	if m.att == nil || m.att.id != id || m.status.Phase != phase {
		return nil
	}
	return m.att
}

func (m *Machine) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
	if m.opts.Observer != nil {
		m.opts.Observer(s)
	}
}

func (m *Machine) transition(phase Phase, update func(*Status)) {
	s := m.status
	s.Phase = phase
	s.Reason = nil
	if update != nil {
		update(&s)
	}
	m.setStatus(s)
}

func (m *Machine) start() error {
	if m.status.Phase != PhaseIdle {
		return ErrAttemptInProgress
	}
	m.seq++
	ctx, cancel := context.WithCancel(m.runCtx)
	m.att = &attempt{id: m.seq, ctx: ctx, cancel: cancel}
	m.scanning.Store(m.seq)
	m.setStatus(Status{Phase: PhaseScanningQR, Attempt: m.seq, StartedAt: m.opts.Now()})
	log.Printf("Student %s started check-in attempt %d", m.opts.StudentID, m.seq)
	return nil
}

func (m *Machine) abort() {
	if m.att == nil {
		return
	}
	switch m.status.Phase {
	case PhaseRecording:
		// the write may already have committed; its reply decides the outcome
		log.Printf("Ignoring abort for student %s: attempt %d is recording", m.opts.StudentID, m.att.id)
		return
	case PhaseSuccess:
		m.reset()
		return
	}
	m.fail(models.ErrAborted)
}

func (m *Machine) onPayload(ev payloadEvent) {
	att := m.current(ev.attempt, PhaseScanningQR)
	if att == nil || att.checking {
		return
	}
	att.checking = true
	m.scanning.Store(0)

	go func() {
		session, err := m.deps.Sessions.GetSession(att.ctx, ev.sessionID)
		m.post(sessionEvent{attempt: att.id, subjectCode: ev.subjectCode, session: session, err: err})
	}()
}

func (m *Machine) onSession(ev sessionEvent) {
	att := m.current(ev.attempt, PhaseScanningQR)
	if att == nil {
		return
	}
	switch {
	case ev.err != nil:
		m.fail(ev.err)
	case !ev.session.Active():
		m.fail(models.ErrSessionEnded)
	case ev.session.SubjectCode != ev.subjectCode:
		m.fail(fmt.Errorf("%w: subject %q does not match session subject %q",
			models.ErrInvalidPayload, ev.subjectCode, ev.session.SubjectCode))
	default:
		att.sessionID = ev.session.ID
		m.transition(PhaseAwaitingFaceCapture, func(s *Status) {
			s.SessionID = ev.session.ID
			s.SubjectCode = ev.session.SubjectCode
		})
	}
}

func (m *Machine) capture(img image.Image) error {
	if m.att == nil || m.status.Phase != PhaseAwaitingFaceCapture || m.att.detecting {
		return ErrNotAwaitingCapture
	}
	if img == nil {
		return fmt.Errorf("%w: empty frame", models.ErrCaptureFailed)
	}
	att := m.att
	att.detecting = true
	att.capture = img

	go func() {
		regions, err := m.deps.Detector.DetectFaces(att.ctx, img)
		m.post(detectedEvent{attempt: att.id, regions: regions, err: err})
	}()
	return nil
}

func (m *Machine) onDetected(ev detectedEvent) {
	att := m.current(ev.attempt, PhaseAwaitingFaceCapture)
	if att == nil {
		return
	}
	switch {
	case ev.err != nil:
		m.fail(fmt.Errorf("%w: %w", models.ErrCaptureFailed, ev.err))
	case len(ev.regions) == 0:
		m.fail(models.ErrNoFaceDetected)
	case len(ev.regions) > 1:
		m.fail(fmt.Errorf("%w: found %d faces", models.ErrMultipleFacesDetected, len(ev.regions)))
	default:
		img := att.capture
		att.capture = nil
		m.transition(PhaseVerifying, nil)
		go m.verify(att, img, ev.regions[0])
	}
}

// verify loads the enrolled template, then races extraction and comparison
// against the timeout. A result that loses the race is left in its buffered
// channel and never reaches the event loop.
func (m *Machine) verify(att *attempt, img image.Image, region image.Rectangle) {
	student, err := m.deps.Students.Student(att.ctx, m.opts.StudentID)
	if err != nil {
		m.post(verifiedEvent{attempt: att.id, err: err})
		return
	}

	results := make(chan verifiedEvent, 1)
	go func() {
		ev := verifiedEvent{attempt: att.id, student: student}
		live, err := m.deps.Extractor.ExtractEmbedding(att.ctx, img, region)
		switch {
		case err != nil:
			ev.err = fmt.Errorf("%w: %w", models.ErrVerificationFailed, err)
		case len(live) != len(student.FaceEmbedding):
			ev.err = fmt.Errorf("%w: embedding has %d values, template has %d",
				models.ErrVerificationFailed, len(live), len(student.FaceEmbedding))
		default:
			ev.distance, ev.matched = m.deps.Matcher.Compare(live, student.FaceEmbedding)
			ev.compared = true
		}
		results <- ev
	}()

	timer := time.NewTimer(m.opts.VerifyTimeout)
	defer timer.Stop()

	select {
	case ev := <-results:
		m.post(ev)
	case <-timer.C:
		m.post(verifiedEvent{attempt: att.id, err: models.ErrVerificationTimeout})
	case <-att.ctx.Done():
	}
}

func (m *Machine) onVerified(ev verifiedEvent) {
	att := m.current(ev.attempt, PhaseVerifying)
	if att == nil {
		return
	}
	if ev.compared {
		d := ev.distance
		m.mu.Lock()
		m.status.Distance = &d
		m.mu.Unlock()
	}
	switch {
	case ev.err != nil:
		m.fail(ev.err)
	case !ev.matched:
		m.fail(fmt.Errorf("%w: distance %.4f", models.ErrVerificationFailed, ev.distance))
	default:
		m.transition(PhaseRecording, nil)
		fields := ev.student.Fields(m.status.SubjectCode)
		go func() {
			rec, err := m.deps.Recorder.Record(att.ctx, att.sessionID, ev.student.ID, fields)
			m.post(recordedEvent{attempt: att.id, record: rec, err: err})
		}()
	}
}

func (m *Machine) onRecorded(ev recordedEvent) {
	att := m.current(ev.attempt, PhaseRecording)
	if att == nil {
		return
	}
	if ev.err != nil {
		m.fail(ev.err)
		return
	}
	rec := ev.record
	m.transition(PhaseSuccess, func(s *Status) { s.Record = &rec })
	log.Printf("Student %s checked in to session %s", m.opts.StudentID, rec.SessionID)

	att.cancel()
	id := att.id
	att.reset = time.AfterFunc(m.opts.ResultDisplay, func() { m.post(resetEvent{attempt: id}) })
}

func (m *Machine) onReset(ev resetEvent) {
	if m.current(ev.attempt, PhaseSuccess) == nil {
		return
	}
	m.reset()
}

// fail reports err as the outcome of the current attempt and returns the
// machine to Idle. Errors outside the taxonomy are reported as
// ErrStoreUnavailable.
func (m *Machine) fail(err error) {
	if reason := models.Reason(err); !errors.Is(err, reason) {
		err = fmt.Errorf("%w: %w", reason, err)
	}
	log.Printf("Check-in attempt %d for student %s failed: %v", m.att.id, m.opts.StudentID, err)
	m.transition(PhaseFailed, func(s *Status) { s.Reason = err })
	m.reset()
}

func (m *Machine) reset() {
	id := m.seq
	m.discard()
	m.setStatus(Status{Phase: PhaseIdle, Attempt: id})
}

// discard cancels outstanding work and drops captured data.
func (m *Machine) discard() {
	m.scanning.Store(0)
	if m.att == nil {
		return
	}
	m.att.cancel()
	if m.att.reset != nil {
		m.att.reset.Stop()
	}
	m.att.capture = nil
	m.att = nil
}
