package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-phone/core/llms"
	"github.com/koscakluka/ema-phone/core/protocol"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Conn is the duplex socket a session is bound to. *websocket.Conn
// satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type State int32

const (
	StateActive State = iota
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

type CloseReason string

// Messages of error frames sent for utterances that never reach a turn.
const (
	frameTooLargeMessage = "utterance too long"
	queueFullMessage     = "utterance dropped, still answering"
)

const (
	CloseReasonStop     CloseReason = "stop"
	CloseReasonTimeout  CloseReason = "timeout"
	CloseReasonPeer     CloseReason = "peer"
	CloseReasonShutdown CloseReason = "shutdown"
)

// Session is the state of one media-stream connection. Inbound events are
// handled on the caller's goroutine; turns run one at a time on a worker
// goroutine in arrival order.
type Session struct {
	id        uuid.UUID
	conn      Conn
	providers Providers
	options   sessionOptions

	streamIDMu sync.RWMutex
	streamID   string

	conversation conversation

	state       atomic.Int32
	closeReason CloseReason
	createdAt   time.Time
	deadline    time.Time
	timer       stopper

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex
	queue   chan []byte
	done    chan struct{}
	idle    chan struct{}
}

// NewSession binds a new ACTIVE session to conn and arms its deadline. ctx
// is the parent of every provider call made by the session.
func NewSession(ctx context.Context, conn Conn, providers Providers, opts ...SessionOption) (*Session, error) {
	if missing := providers.missing(); len(missing) > 0 {
		return nil, fmt.Errorf("incomplete providers: missing %s", strings.Join(missing, ", "))
	}

	options := defaultSessionOptions()
	for _, opt := range opts {
		opt(&options)
	}

	s := &Session{
		id:        uuid.New(),
		conn:      conn,
		providers: providers,
		options:   options,
		queue:     make(chan []byte, options.queueCapacity),
		done:      make(chan struct{}),
		idle:      make(chan struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.createdAt = options.now()
	s.deadline = s.createdAt.Add(options.timeout)
	s.timer = options.afterFunc(options.timeout, func() { s.close(CloseReasonTimeout) })

	activeSessions.Add(s.ctx, 1)
	logger.InfoContext(s.ctx, "session opened",
		"session_id", s.id,
		"deadline", s.deadline)

	go s.processTurns()

	return s, nil
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) Deadline() time.Time { return s.deadline }

// Done is closed once the session is CLOSED.
func (s *Session) Done() <-chan struct{} { return s.done }

// CloseReason is empty until Done is closed.
func (s *Session) CloseReason() CloseReason {
	select {
	case <-s.done:
		return s.closeReason
	default:
		return ""
	}
}

// History returns a copy of the conversation so far.
func (s *Session) History() []llms.Turn { return s.conversation.History() }

func (s *Session) StreamID() string {
	s.streamIDMu.RLock()
	defer s.streamIDMu.RUnlock()
	return s.streamID
}

func (s *Session) isActive() bool { return s.State() == StateActive }

// Serve reads frames until the session closes or the peer goes away.
func (s *Session) Serve() {
	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if s.isActive() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.DebugContext(s.ctx, "media stream read failed", "session_id", s.id, "error", err)
			}
			s.close(CloseReasonPeer)
			return
		}

		if err := s.HandleFrame(msg); errors.Is(err, ErrSessionClosed) {
			return
		}
	}
}

// HandleFrame decodes one inbound frame and applies it. A frame over the
// size limit is not decoded; it is answered with an error frame and reported
// as ErrFrameTooLarge.
func (s *Session) HandleFrame(raw []byte) error {
	if len(raw) > s.options.maxFrameSize {
		if !s.isActive() {
			return ErrSessionClosed
		}
		droppedTurns.Add(s.ctx, 1, metric.WithAttributes(attribute.String("reason", "frame_too_large")))
		logger.WarnContext(s.ctx, "dropping oversized inbound frame",
			"session_id", s.id,
			"size", len(raw),
			"limit", s.options.maxFrameSize)
		s.reject(frameTooLargeMessage)
		return ErrFrameTooLarge
	}
	return s.Handle(protocol.Decode(raw))
}

// reject tells the caller that an utterance was dropped before it reached a
// turn. Nothing is sent before the stream has started.
func (s *Session) reject(message string) {
	streamID := s.StreamID()
	if streamID == "" {
		return
	}
	if err := s.send(protocol.ErrorFrame{StreamID: streamID, Message: message}); err != nil {
		logger.DebugContext(s.ctx, "failed to report dropped utterance", "session_id", s.id, "error", err)
	}
}

// Handle applies event to the session. Events arriving after close are
// ignored and report ErrSessionClosed.
func (s *Session) Handle(event protocol.Event) error {
	if !s.isActive() {
		return ErrSessionClosed
	}

	switch event := event.(type) {
	case protocol.StartEvent:
		s.start(event.StreamID)
	case protocol.MediaEvent:
		return s.enqueue(event.Payload)
	case protocol.StopEvent:
		s.close(CloseReasonStop)
	case protocol.UnknownEvent:
		logger.DebugContext(s.ctx, "dropping inbound frame",
			"session_id", s.id,
			"event", event.Name,
			"reason", event.Reason)
	}
	return nil
}

// start records the stream ID. The first one wins.
func (s *Session) start(streamID string) {
	s.streamIDMu.Lock()
	defer s.streamIDMu.Unlock()

	if s.streamID != "" {
		if s.streamID != streamID {
			logger.WarnContext(s.ctx, "ignoring repeated start with a different stream id",
				"session_id", s.id,
				"stream_id", s.streamID,
				"ignored_stream_id", streamID)
		}
		return
	}
	s.streamID = streamID
	logger.InfoContext(s.ctx, "media stream started", "session_id", s.id, "stream_id", streamID)
}

func (s *Session) enqueue(audio []byte) error {
	if s.StreamID() == "" {
		logger.DebugContext(s.ctx, "dropping media received before start", "session_id", s.id)
		return nil
	}

	select {
	case s.queue <- audio:
		return nil
	default:
		droppedTurns.Add(s.ctx, 1, metric.WithAttributes(attribute.String("reason", "queue_full")))
		logger.WarnContext(s.ctx, "turn queue full, dropping utterance",
			"session_id", s.id,
			"capacity", cap(s.queue))
		s.reject(queueFullMessage)
		return ErrQueueFull
	}
}

func (s *Session) processTurns() {
	defer close(s.idle)
	for {
		select {
		case <-s.done:
			return
		case audio := <-s.queue:
			s.runTurn(audio)
		}
	}
}

// Close closes the session as part of a server shutdown.
func (s *Session) Close() {
	s.close(CloseReasonShutdown)
}

// Wait blocks until the session is closed and its in-flight turn, if any,
// has returned.
func (s *Session) Wait() {
	<-s.done
	<-s.idle
}

func (s *Session) close(reason CloseReason) {
	if !s.state.CompareAndSwap(int32(StateActive), int32(StateClosed)) {
		return
	}
	s.closeReason = reason

	// The timeout path runs before NewSession may have stored the timer.
	if reason != CloseReasonTimeout {
		s.timer.Stop()
	}
	s.cancel()
	close(s.done)
	if err := s.conn.Close(); err != nil {
		logger.DebugContext(s.ctx, "failed to close media stream socket", "session_id", s.id, "error", err)
	}

	activeSessions.Add(context.WithoutCancel(s.ctx), -1)
	logger.InfoContext(s.ctx, "session closed",
		"session_id", s.id,
		"stream_id", s.StreamID(),
		"reason", string(reason),
		"turns", s.conversation.Len())
}

// send writes one outbound frame. It is a no-op returning ErrSessionClosed
// once the session has closed.
func (s *Session) send(frame protocol.Frame) error {
	payload, err := protocol.Encode(frame)
	if err != nil {
		return fmt.Errorf("failed to encode %s frame: %w", frame.Kind(), err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if !s.isActive() {
		return ErrSessionClosed
	}
	if s.options.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.options.writeTimeout)); err != nil {
			return fmt.Errorf("failed to set write deadline: %w", err)
		}
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("failed to write %s frame: %w", frame.Kind(), err)
	}
	return nil
}
