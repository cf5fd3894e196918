package live

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/vango-go/vai-mentor/pkg/core"
	"github.com/vango-go/vai-mentor/pkg/core/audio"
	"github.com/vango-go/vai-mentor/pkg/core/capture"
	"github.com/vango-go/vai-mentor/pkg/core/history"
	"github.com/vango-go/vai-mentor/pkg/core/mentor"
	"github.com/vango-go/vai-mentor/pkg/core/metrics"
	"github.com/vango-go/vai-mentor/pkg/core/playback"
	"github.com/vango-go/vai-mentor/pkg/core/remote"
	"github.com/vango-go/vai-mentor/pkg/core/transcript"
)

// ErrStartCancelled is returned by Start when Stop ran before the session
// finished connecting.
var ErrStartCancelled = errors.New("live: start cancelled by stop")

var tracer = otel.Tracer("github.com/vango-go/vai-mentor/pkg/core/live")

// Controller owns the single live voice session: it acquires the devices,
// opens the remote session, routes events to playback and the transcript,
// and releases everything on stop or remote close.
type Controller struct {
	cfg     Config
	dialer  remote.Dialer
	devices Devices
	store   history.Store
	logger  *zap.Logger
	metrics *metrics.Metrics

	agg      *transcript.Aggregator
	micLevel atomic.Uint64

	mu          sync.Mutex
	state       State
	status      string
	personality mentor.Personality
	sess        *session
	subs        map[int]*subscriber
	nextSub     int
	view        []transcript.Turn
	notified    notifyKey

	// storeMu serializes history writes. Each write stores the transcript
	// as it is when the write begins, so the last write matches memory.
	storeMu        sync.Mutex
	persistMu      sync.Mutex
	persistPending bool
	persistRunning bool
	persistWG      sync.WaitGroup
}

// notifyKey holds the snapshot fields whose change is worth a notification.
type notifyKey struct {
	state       State
	status      string
	personality string
	user, model string
	turns       int
	inFlight    int
}

// session is the set of resources held between Start and teardown. Fields
// are filled in as they are acquired; teardown releases whatever is set.
type session struct {
	id      string
	started time.Time
	cancel  context.CancelFunc
	span    trace.Span

	mic      capture.Source
	out      playback.Output
	sched    *playback.Scheduler
	remote   remote.Session
	pipeline *capture.Pipeline
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// NewController returns an Idle controller. A nil store keeps history in
// memory only.
func NewController(cfg Config, dialer remote.Dialer, devices Devices, store history.Store, opts ...Option) *Controller {
	cfg = cfg.withDefaults()
	if store == nil {
		store = history.NewMemoryStore()
	}
	c := &Controller{
		cfg:     cfg,
		dialer:  dialer,
		devices: devices,
		store:   store,
		logger:  zap.NewNop(),
		agg:     transcript.NewAggregator(nil),
		state:   StateIdle,
		status:  StatusIdle,
		subs:    make(map[int]*subscriber),
		view:    []transcript.Turn{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component", "live_controller"))

	p, err := mentor.Lookup(cfg.Personality)
	if err != nil {
		c.logger.Warn("unknown personality, using default", zap.String("personality", cfg.Personality))
		p = mentor.Default()
	}
	c.personality = p
	return c
}

// Load restores the saved transcript. Failures are logged and leave the
// transcript empty.
func (c *Controller) Load(ctx context.Context) {
	turns, err := history.LoadTranscript(ctx, c.store, c.cfg.HistoryKey)
	if err != nil {
		c.logger.Warn("failed to load mentor history", zap.Error(err))
		c.metrics.RecordPersistenceError("load")
		turns = nil
	}
	c.agg.Replace(turns)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.view = c.agg.Transcript()
	c.notifyLocked()
}

// Start acquires the microphone and output, then dials the remote session.
// It returns once the dial completes; the session becomes Active when the
// remote acknowledges setup. Any failure releases what was acquired, sets
// the status text, and leaves the controller Idle.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return core.NewInvalidStateError("a session is already " + strings.ToLower(c.state.String()))
	}
	if c.dialer == nil || c.devices == nil {
		c.mu.Unlock()
		return core.NewInvalidStateError("controller has no dialer or devices")
	}
	s := &session{id: uuid.NewString(), started: time.Now()}
	ctx, s.cancel = context.WithCancel(ctx)
	ctx, s.span = tracer.Start(ctx, "live.session", trace.WithAttributes(
		attribute.String("session.id", s.id),
		attribute.String("mentor.personality", c.personality.ID),
	))
	c.sess = s
	c.state = StateConnecting
	c.status = StatusConnecting
	personality := c.personality
	c.notifyLocked()
	c.mu.Unlock()

	c.metrics.RecordSessionStart()
	logger := c.logger.With(zap.String("session_id", s.id))
	logger.Info("starting live session", zap.String("personality", personality.ID))

	mic, err := c.devices.OpenMicrophone(ctx, c.cfg.InputFormat)
	if err != nil {
		err = core.NewAcquisitionError("could not access microphone", err)
		c.fail(s, err, StatusMicrophoneErr)
		return err
	}
	if !c.attach(s, func() { s.mic = mic }) {
		_ = mic.Close()
		return ErrStartCancelled
	}

	out, err := c.devices.OpenOutput(ctx, c.cfg.OutputFormat)
	if err != nil {
		err = core.NewAcquisitionError("could not open audio output", err)
		c.fail(s, err, errorStatus(err))
		return err
	}
	if !c.attach(s, func() {
		s.out = out
		s.sched = playback.NewScheduler(out)
	}) {
		_ = out.Close()
		return ErrStartCancelled
	}

	rs, err := c.dialer.Dial(ctx, remote.Config{
		Model:               c.cfg.Model,
		SystemInstruction:   personality.Instruction,
		VoiceName:           c.cfg.VoiceName,
		ResponseModalities:  []string{"AUDIO"},
		InputTranscription:  true,
		OutputTranscription: true,
	})
	if err != nil {
		if !c.isCurrent(s) {
			return ErrStartCancelled
		}
		if !core.IsType(err, core.ErrRemoteOpen) {
			err = core.NewRemoteOpenError(err.Error(), err)
		}
		c.fail(s, err, errorStatus(err))
		return err
	}
	if !c.attach(s, func() { s.remote = rs }) {
		_ = rs.Close()
		return ErrStartCancelled
	}

	go c.pump(s, rs)
	return nil
}

// Stop tears down the current session. It is idempotent and safe in every
// state, including while Start is still connecting.
func (c *Controller) Stop() {
	c.mu.Lock()
	s := c.detachLocked()
	c.mu.Unlock()
	if s == nil {
		return
	}
	c.teardown(s, StatusEnded, nil)
}

// ClearHistory deletes the committed transcript. It is only allowed while
// Idle and reports whether it ran.
func (c *Controller) ClearHistory(ctx context.Context) bool {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return false
	}
	c.agg.Clear()
	c.view = c.agg.Transcript()
	c.notifyLocked()
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.PersistTimeout)
	defer cancel()
	_ = c.writeTranscript(ctx, "delete")
	return true
}

// SetPersonality selects the personality for the next session. It is only
// allowed while Idle.
func (c *Controller) SetPersonality(id string) error {
	p, err := mentor.Lookup(id)
	if err != nil {
		return core.NewInvalidRequestError(err.Error())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return core.NewInvalidStateError("personality can only change while idle")
	}
	c.personality = p
	c.notifyLocked()
	return nil
}

// Personality returns the selected personality.
func (c *Controller) Personality() mentor.Personality {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.personality
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns the current status surface.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe returns a channel receiving a snapshot on every change, starting
// with the current one. Call cancel to unsubscribe.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	sub := &subscriber{ch: make(chan Snapshot, subscriberBuffer)}
	c.subs[id] = sub
	sub.offer(c.snapshotLocked())

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// Close stops any session, waits for pending history writes, and releases
// the history store.
func (c *Controller) Close() error {
	c.Stop()
	c.persistWG.Wait()
	return c.store.Close()
}

// pump consumes remote events in arrival order until the session ends.
func (c *Controller) pump(s *session, rs remote.Session) {
	closed := false
	for ev := range rs.Events() {
		if cl, ok := ev.(remote.Closed); ok {
			closed = true
			c.remoteClosed(s, cl.Err)
			continue
		}
		c.handle(s, ev)
	}
	if !closed {
		c.remoteClosed(s, nil)
	}
}

func (c *Controller) handle(s *session, ev remote.Event) {
	persist := false

	c.mu.Lock()
	if c.sess != s {
		c.mu.Unlock()
		return
	}
	switch e := ev.(type) {
	case remote.Opened:
		c.activateLocked(s)
	case remote.InputTranscript:
		c.agg.AppendUserPartial(e.Text)
	case remote.OutputTranscript:
		c.agg.AppendModelPartial(e.Text)
	case remote.TurnComplete:
		var committed []transcript.Turn
		if committed, persist = c.agg.CommitTurn(); persist {
			c.view = committed
		}
	case remote.AudioChunk:
		c.scheduleLocked(s, e)
	case remote.Interrupted:
		s.sched.Interrupt()
		c.metrics.RecordInterruption()
	}
	c.notifyIfChangedLocked()
	c.mu.Unlock()

	if persist {
		c.metrics.RecordTurnCommitted()
		c.schedulePersist()
	}
}

// activateLocked wires the capture pipeline to the now open session.
func (c *Controller) activateLocked(s *session) {
	if c.state != StateConnecting {
		return
	}
	rs := s.remote
	p := capture.New(s.mic, func(m remote.Media) {
		if err := rs.SendMedia(m); err != nil {
			return
		}
		c.metrics.RecordFrameSent()
	}, capture.Config{
		FrameSize: c.cfg.FrameSize,
		Format:    c.cfg.InputFormat,
		OnLevel: func(rms float64) {
			c.micLevel.Store(math.Float64bits(rms))
			c.metrics.RecordMicLevel(rms)
		},
	}, c.logger.With(zap.String("session_id", s.id)))
	if err := p.Start(); err != nil {
		c.logger.Error("failed to start capture", zap.Error(err))
		return
	}
	s.pipeline = p
	c.state = StateActive
	c.status = StatusListening
	c.metrics.RecordSessionActive()
	c.logger.Info("live session active", zap.String("session_id", s.id))
}

// scheduleLocked decodes one audio chunk and queues it. A malformed chunk is
// skipped; the session continues.
func (c *Controller) scheduleLocked(s *session, chunk remote.AudioChunk) {
	if s.sched == nil {
		return
	}
	rate := sampleRateOf(chunk.MIMEType, c.cfg.OutputFormat.SampleRate)
	pcm, err := audio.DecodeSamples(chunk.Data)
	if err == nil {
		var frame *audio.Frame
		frame, err = audio.DecodeToAudioFrames(pcm, rate, c.cfg.OutputFormat.Channels)
		if err == nil {
			_, err = s.sched.ScheduleFrame(frame)
		}
	}
	if err != nil {
		result := string(core.TypeOf(err))
		if result == "" {
			result = "schedule_error"
		}
		c.metrics.RecordAudioChunk(result)
		c.logger.Warn("skipping audio chunk", zap.String("session_id", s.id), zap.Error(err))
		return
	}
	c.metrics.RecordAudioChunk("scheduled")
}

func (c *Controller) remoteClosed(s *session, err error) {
	c.mu.Lock()
	if c.sess != s {
		c.mu.Unlock()
		return
	}
	c.detachLocked()
	c.mu.Unlock()

	status := StatusEnded
	if err != nil {
		status = errorStatus(err)
		c.logger.Warn("live session closed with error", zap.String("session_id", s.id), zap.Error(err))
	}
	c.teardown(s, status, err)
}

// fail tears down s after a failed Start step, unless Stop already did.
func (c *Controller) fail(s *session, err error, status string) {
	c.mu.Lock()
	if c.sess != s {
		c.mu.Unlock()
		return
	}
	c.detachLocked()
	c.mu.Unlock()

	c.logger.Warn("failed to start live session", zap.String("session_id", s.id), zap.Error(err))
	c.teardown(s, status, err)
}

// attach records a resource on s if s is still the current session.
func (c *Controller) attach(s *session, set func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != s {
		return false
	}
	set()
	return true
}

func (c *Controller) isCurrent(s *session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess == s
}

// detachLocked forgets the current session. Late events and Start steps
// compare against c.sess and find themselves stale.
func (c *Controller) detachLocked() *session {
	s := c.sess
	c.sess = nil
	return s
}

// teardown releases every resource held by a detached session.
func (c *Controller) teardown(s *session, status string, cause error) {
	s.cancel()

	c.mu.Lock()
	pipeline, rs, mic, sched, out := s.pipeline, s.remote, s.mic, s.sched, s.out
	c.mu.Unlock()

	if pipeline != nil {
		pipeline.Stop()
	}
	if rs != nil {
		_ = rs.Close()
	}
	if mic != nil {
		if err := mic.Close(); err != nil {
			c.logger.Warn("failed to release microphone", zap.Error(err))
		}
	}
	if sched != nil {
		sched.Interrupt()
	}
	if out != nil {
		if err := out.Close(); err != nil {
			c.logger.Warn("failed to close audio output", zap.Error(err))
		}
	}
	c.agg.ResetPending()
	c.micLevel.Store(0)

	outcome := "ended"
	if cause != nil {
		outcome = string(core.TypeOf(cause))
		if outcome == "" {
			outcome = "error"
		}
		s.span.RecordError(cause)
		s.span.SetStatus(codes.Error, cause.Error())
	}
	s.span.End()
	c.metrics.RecordSessionEnd(outcome, time.Since(s.started))

	c.mu.Lock()
	if c.sess == nil {
		c.state = StateIdle
		c.status = status
		c.notifyLocked()
	}
	c.mu.Unlock()
	c.logger.Info("live session ended", zap.String("session_id", s.id), zap.String("outcome", outcome))
}

// schedulePersist asks the history writer to save the transcript. The pump
// never waits on the store; requests made while a write runs coalesce into
// one more write.
func (c *Controller) schedulePersist() {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	c.persistPending = true
	if c.persistRunning {
		return
	}
	c.persistRunning = true
	c.persistWG.Add(1)
	go c.persistLoop()
}

func (c *Controller) persistLoop() {
	defer c.persistWG.Done()
	for {
		c.persistMu.Lock()
		if !c.persistPending {
			c.persistRunning = false
			c.persistMu.Unlock()
			return
		}
		c.persistPending = false
		c.persistMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.PersistTimeout)
		_ = c.writeTranscript(ctx, "save")
		cancel()
	}
}

// writeTranscript stores the committed transcript as it is once the store
// is free. Failures are logged and the conversation continues in memory.
func (c *Controller) writeTranscript(ctx context.Context, op string) error {
	c.storeMu.Lock()
	defer c.storeMu.Unlock()
	turns := c.agg.Transcript()
	if err := history.SaveTranscript(ctx, c.store, c.cfg.HistoryKey, turns); err != nil {
		c.logger.Warn("failed to write mentor history", zap.String("op", op), zap.Error(err))
		c.metrics.RecordPersistenceError(op)
		return err
	}
	return nil
}

func (c *Controller) snapshotLocked() Snapshot {
	user, model := c.agg.Pending()
	snap := Snapshot{
		State:        c.state,
		Status:       c.status,
		Personality:  c.personality.ID,
		UserPartial:  user,
		ModelPartial: model,
		Transcript:   c.view,
		MicLevel:     math.Float64frombits(c.micLevel.Load()),
	}
	if c.sess != nil {
		snap.SessionID = c.sess.id
		snap.InFlight = c.sess.sched.InFlight()
	}
	return snap
}

func (c *Controller) keyLocked() notifyKey {
	user, model := c.agg.Pending()
	k := notifyKey{
		state:       c.state,
		status:      c.status,
		personality: c.personality.ID,
		user:        user,
		model:       model,
		turns:       len(c.view),
	}
	if c.sess != nil {
		k.inFlight = c.sess.sched.InFlight()
	}
	return k
}

func (c *Controller) notifyLocked() {
	c.notified = c.keyLocked()
	if len(c.subs) == 0 {
		return
	}
	snap := c.snapshotLocked()
	for _, sub := range c.subs {
		sub.offer(snap)
	}
}

// notifyIfChangedLocked skips events that leave the status surface as it
// was, such as a chunk that could not be scheduled.
func (c *Controller) notifyIfChangedLocked() {
	if c.keyLocked() == c.notified {
		return
	}
	c.notifyLocked()
}

// errorStatus renders err as the user-facing status line.
func errorStatus(err error) string {
	return fmt.Sprintf("Error: %s. Please try again.", reasonOf(err))
}

func reasonOf(err error) string {
	var ce *core.Error
	msg := err.Error()
	if errors.As(err, &ce) {
		msg = ce.Message
	}
	msg = strings.TrimRight(strings.TrimSpace(msg), ".")
	if msg == "" {
		msg = "unknown error"
	}
	return msg
}

// sampleRateOf reads the rate parameter of an "audio/pcm;rate=N" MIME type.
func sampleRateOf(mime string, fallback int) int {
	for _, param := range strings.Split(mime, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || !strings.EqualFold(k, "rate") {
			continue
		}
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
