// Package reading drives a user through an ordered list of statements,
// validating each spoken reading before moving to the next.
//
// State transitions:
//
//	IDLE → LISTENING(0) → VALIDATING(0) → LISTENING(1) → ... → COMPLETE
//	           ↑              │
//	           └── invalid ───┘
//
// Any non-terminal state can move to STOPPED.
//
// Rules:
//   - LISTENING(i): every fragment recomputes the live match; once a final
//     fragment has arrived, each fragment restarts the debounce timer.
//   - VALIDATING(i): entered when the timer fires; a valid verdict advances,
//     an invalid one returns to LISTENING(i) with the transcript kept.
//   - A stream error or end closes the listening phase and cancels the timer
//     without changing i. Relisten opens a fresh phase.
//   - COMPLETE and STOPPED accept nothing further.
package reading

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"consent-reading-service/internal/catalog"
	"consent-reading-service/internal/service/match"
	"consent-reading-service/internal/service/stt"
)

// DefaultDebounce is the quiet period after the last fragment before the
// transcript is validated.
const DefaultDebounce = time.Second

// ListenRequest asks the capture collaborator to open a listening phase.
type ListenRequest struct {
	SessionID string
	Phase     uint64
	Statement catalog.Statement
}

// Capture is the listening collaborator. Only one phase is outstanding at a
// time; StopListening must be idempotent.
type Capture interface {
	StartListening(req ListenRequest, cb stt.Callback) error
	StopListening()
}

// MatchUpdate is the live highlighting state for the current statement.
type MatchUpdate struct {
	StatementIndex int    `json:"statementIndex"`
	Phase          uint64 `json:"phase"`
	MatchedIndices []int  `json:"matchedIndices"`
	WordCount      int    `json:"wordCount"`
	Transcript     string `json:"transcript"`
	IsFinal        bool   `json:"isFinal"`
}

// Progress is a snapshot of session advancement.
type Progress struct {
	SessionID    string `json:"sessionId"`
	State        State  `json:"state"`
	CurrentIndex int    `json:"currentIndex"`
	Total        int    `json:"total"`
	Completed    []bool `json:"completed"`
	IsComplete   bool   `json:"isComplete"`
}

// Observer receives session output. Methods are called with the session
// lock held and must not call back into the session.
type Observer interface {
	OnMatch(u MatchUpdate)
	OnVerdict(index int, v match.Verdict)
	OnProgress(p Progress)
	OnStreamError(index int, err error)
}

// NopObserver discards everything.
type NopObserver struct{}

func (NopObserver) OnMatch(MatchUpdate)          {}
func (NopObserver) OnVerdict(int, match.Verdict) {}
func (NopObserver) OnProgress(Progress)          {}
func (NopObserver) OnStreamError(int, error)     {}

// Timer is a cancellable scheduled callback.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Option configures a Session.
type Option func(*options)

type options struct {
	capture     Capture
	observer    Observer
	onComplete  func()
	debounce    time.Duration
	threshold   float64
	scorerOpts  []match.ScorerOption
	trackerOpts []match.TrackerOption
	logger      zerolog.Logger
	afterFunc   AfterFunc
	id          string
}

// WithCapture sets the listening collaborator.
func WithCapture(c Capture) Option {
	return func(o *options) { o.capture = c }
}

// WithObserver sets the UI collaborator.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithOnComplete sets the handler invoked once when every statement is read.
func WithOnComplete(f func()) Option {
	return func(o *options) { o.onComplete = f }
}

// WithDebounce sets the validation debounce window. Non-positive values are
// ignored.
func WithDebounce(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// WithThreshold sets the acceptance threshold.
func WithThreshold(t float64) Option {
	return func(o *options) { o.threshold = t }
}

// WithWordWeight sets the scorer's word-overlap weight.
func WithWordWeight(w float64) Option {
	return func(o *options) { o.scorerOpts = append(o.scorerOpts, match.WithWordWeight(w)) }
}

// WithMinPrefixLen sets the live tracker's minimum prefix length.
func WithMinPrefixLen(n int) Option {
	return func(o *options) { o.trackerOpts = append(o.trackerOpts, match.WithMinPrefixLen(n)) }
}

// WithLogger sets the session logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithAfterFunc replaces the clock used for the debounce timer.
func WithAfterFunc(f AfterFunc) Option {
	return func(o *options) {
		if f != nil {
			o.afterFunc = f
		}
	}
}

// WithID overrides the generated session id.
func WithID(id string) Option {
	return func(o *options) {
		if id != "" {
			o.id = id
		}
	}
}

// Session is one user's pass through a statement list. Safe for concurrent
// use: STT callbacks, timer callbacks and caller methods are serialised.
type Session struct {
	mu sync.Mutex

	id         string
	statements []catalog.Statement
	validator  *match.Validator
	tracker    *match.Tracker
	capture    Capture
	observer   Observer
	onComplete func()
	debounce   time.Duration
	afterFunc  AfterFunc
	logger     zerolog.Logger

	state     State
	index     int
	completed []bool

	phase     uint64 // current listening phase id
	listening bool   // capture has an outstanding phase
	finals    []string
	interim   string

	timer      Timer
	generation uint64 // bumped on every timer reset or cancel
}

// New creates a session over a copy of statements.
func New(statements []catalog.Statement, opts ...Option) (*Session, error) {
	if len(statements) == 0 {
		return nil, ErrNoStatements
	}

	o := options{
		observer:  NopObserver{},
		debounce:  DefaultDebounce,
		threshold: match.DefaultThreshold,
		logger:    zerolog.Nop(),
		afterFunc: realAfterFunc,
	}
	for _, opt := range opts {
		opt(&o)
	}

	validator, err := match.NewValidator(o.threshold, match.NewScorer(o.scorerOpts...))
	if err != nil {
		return nil, err
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}

	return &Session{
		id:         o.id,
		statements: append([]catalog.Statement(nil), statements...),
		validator:  validator,
		tracker:    match.NewTracker(o.trackerOpts...),
		capture:    o.capture,
		observer:   o.observer,
		onComplete: o.onComplete,
		debounce:   o.debounce,
		afterFunc:  o.afterFunc,
		logger:     o.logger.With().Str("sessionId", o.id).Logger(),
		completed:  make([]bool, len(statements)),
	}, nil
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Statements returns the session's statements.
func (s *Session) Statements() []catalog.Statement {
	return append([]catalog.Statement(nil), s.statements...)
}

// Progress returns a snapshot of the session.
func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progressLocked()
}

// Start opens the listening phase for the first statement.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state.IsTerminal():
		return ErrSessionTerminal
	case s.state != StateIdle:
		return ErrAlreadyStarted
	}

	s.logger.Info().Int("statements", len(s.statements)).Msg("Reading session started")
	err := s.listenLocked()
	s.observer.OnProgress(s.progressLocked())
	return err
}

// Relisten opens a fresh listening phase for the current statement after the
// previous one ended or failed. The transcript starts empty.
func (s *Session) Relisten() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state.IsTerminal():
		return ErrSessionTerminal
	case s.state == StateIdle:
		return ErrNotListening
	case s.listening:
		return ErrListenOutstanding
	}
	return s.listenLocked()
}

// Stop abandons the session, cancelling the timer and any listening phase.
// Idempotent.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.IsTerminal() {
		return
	}
	s.cancelTimerLocked()
	s.stopCaptureLocked()
	s.state = StateStopped
	s.logger.Info().Int("statementIndex", s.index).Msg("Reading session stopped")
	s.observer.OnProgress(s.progressLocked())
}

// listenLocked resets the transcript and asks capture for a new phase.
func (s *Session) listenLocked() error {
	s.state = StateListening
	s.finals = nil
	s.interim = ""
	s.phase++
	s.listening = true

	if s.capture == nil {
		return nil
	}
	req := ListenRequest{SessionID: s.id, Phase: s.phase, Statement: s.statements[s.index]}
	if err := s.capture.StartListening(req, &phaseCallback{s: s, phase: s.phase}); err != nil {
		s.listening = false
		s.logger.Warn().Err(err).Int("statementIndex", s.index).Msg("Failed to start listening")
		return err
	}
	return nil
}

func (s *Session) stopCaptureLocked() {
	if !s.listening {
		return
	}
	s.listening = false
	if s.capture != nil {
		s.capture.StopListening()
	}
}

func (s *Session) resetTimerLocked() {
	s.cancelTimerLocked()
	gen := s.generation
	s.timer = s.afterFunc(s.debounce, func() { s.fire(gen) })
}

func (s *Session) cancelTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.generation++
}

// accepts reports whether an event tagged with phase belongs to the active
// listening phase.
func (s *Session) accepts(phase uint64) bool {
	return phase == s.phase && s.listening && s.state == StateListening
}

func (s *Session) transcriptLocked() string {
	return strings.Join(s.finals, " ")
}

func (s *Session) onFragment(phase uint64, text string, isFinal bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.accepts(phase) {
		s.logger.Debug().Uint64("phase", phase).Bool("isFinal", isFinal).Msg("Dropping stale fragment")
		return
	}

	if isFinal {
		if t := strings.TrimSpace(text); t != "" {
			s.finals = append(s.finals, t)
		}
		s.interim = ""
	} else {
		s.interim = strings.TrimSpace(text)
	}

	display := s.transcriptLocked()
	if s.interim != "" {
		display = strings.TrimSpace(display + " " + s.interim)
	}
	target := s.statements[s.index].Text
	s.observer.OnMatch(MatchUpdate{
		StatementIndex: s.index,
		Phase:          phase,
		MatchedIndices: s.tracker.MatchedIndices(display, target),
		WordCount:      len(match.Words(target)),
		Transcript:     display,
		IsFinal:        isFinal,
	})

	if len(s.finals) > 0 {
		s.resetTimerLocked()
	}
}

func (s *Session) onStreamEnd(phase uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.accepts(phase) {
		s.logger.Debug().Uint64("phase", phase).Err(err).Msg("Dropping stale stream end")
		return
	}

	s.cancelTimerLocked()
	s.stopCaptureLocked()

	if err == nil {
		s.logger.Debug().Int("statementIndex", s.index).Msg("Listening phase ended")
		return
	}

	se := asStreamError(err)
	s.logger.Warn().Err(err).Str("code", string(se.Code)).Int("statementIndex", s.index).Msg("Listening phase failed")
	s.observer.OnStreamError(s.index, se)
}

// fire runs the debounced validation for timer generation gen.
func (s *Session) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.generation || s.state != StateListening {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.state = StateValidating

	i := s.index
	verdict := s.validator.Validate(s.transcriptLocked(), s.statements[i].Text)
	s.logger.Debug().
		Int("statementIndex", i).
		Int("similarity", verdict.SimilarityPercent).
		Bool("valid", verdict.IsValid).
		Msg("Statement validated")
	s.observer.OnVerdict(i, verdict)

	if !verdict.IsValid {
		s.state = StateListening
		s.mu.Unlock()
		return
	}

	s.completed[i] = true
	s.stopCaptureLocked()
	s.index++

	finished := s.index >= len(s.statements)
	if finished {
		s.index = len(s.statements)
		s.state = StateComplete
		s.logger.Info().Msg("Reading session complete")
	} else if err := s.listenLocked(); err != nil {
		s.observer.OnStreamError(s.index, asStreamError(err))
	}
	s.observer.OnProgress(s.progressLocked())
	onComplete := s.onComplete
	s.mu.Unlock()

	if finished && onComplete != nil {
		onComplete()
	}
}

func asStreamError(err error) *stt.StreamError {
	var se *stt.StreamError
	if errors.As(err, &se) {
		return se
	}
	return stt.NewStreamError(stt.CodeUnknown, err)
}

func (s *Session) progressLocked() Progress {
	return Progress{
		SessionID:    s.id,
		State:        s.state,
		CurrentIndex: s.index,
		Total:        len(s.statements),
		Completed:    append([]bool(nil), s.completed...),
		IsComplete:   s.state == StateComplete,
	}
}

// phaseCallback binds STT events to the listening phase that produced them.
type phaseCallback struct {
	s     *Session
	phase uint64
}

func (c *phaseCallback) OnPartial(text string) { c.s.onFragment(c.phase, text, false) }

func (c *phaseCallback) OnFinal(text string, _ float64) { c.s.onFragment(c.phase, text, true) }

func (c *phaseCallback) OnError(err error) { c.s.onStreamEnd(c.phase, err) }

func (c *phaseCallback) OnEnd() { c.s.onStreamEnd(c.phase, nil) }
