package desktop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/openctrol/agent/internal/logging"
)

// WebSocket message types, matching the values gorilla/websocket uses.
const (
	textMessage   = 1
	binaryMessage = 2
)

const writeTimeout = 10 * time.Second

// Conn is the duplex transport a session runs over. *websocket.Conn from
// gorilla satisfies it; tests use an in-memory fake.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// SessionState tracks the session's lifecycle for status reporting.
type SessionState int32

const (
	SessionConnecting SessionState = iota
	SessionHelloSent
	SessionStreaming
	SessionClosing
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionConnecting:
		return "connecting"
	case SessionHelloSent:
		return "hello-sent"
	case SessionStreaming:
		return "streaming"
	case SessionClosing:
		return "closing"
	case SessionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// helloMessage is the first message on every session, JSON over a text frame.
type helloMessage struct {
	Type      string    `json:"type"`
	AgentID   string    `json:"agent_id"`
	SessionID string    `json:"session_id"`
	Version   string    `json:"version"`
	Monitors  []Monitor `json:"monitors"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// SessionConfig carries the identity fields a session announces in its hello.
type SessionConfig struct {
	SessionID string
	AgentID   string
	Version   string
}

// Session serves one connected viewer: frames out over binary messages,
// commands in over text messages. The session owns two goroutines (one per
// direction) and tears both down when either side fails or the context ends.
type Session struct {
	cfg        SessionConfig
	conn       Conn
	engine     *Engine
	dispatcher *Dispatcher
	dist       *Distributor
	log        *slog.Logger

	// writeMu serializes conn writes: the frame loop and error replies from
	// the read loop share the connection.
	writeMu sync.Mutex

	state     SessionState
	stateMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func NewSession(cfg SessionConfig, conn Conn, eng *Engine, disp *Dispatcher, dist *Distributor) *Session {
	return &Session{
		cfg:        cfg,
		conn:       conn,
		engine:     eng,
		dispatcher: disp,
		dist:       dist,
		log:        logging.WithSession(log, cfg.SessionID),
		done:       make(chan struct{}),
	}
}

// State returns the session's lifecycle state.
func (s *Session) State() SessionState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *Session) setState(st SessionState) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
}

// Run drives the session until the connection drops, the context is
// cancelled, or Close is called. It always returns with the connection
// closed and the subscriber removed.
func (s *Session) Run(ctx context.Context) error {
	defer s.teardown()

	if err := s.sendHello(); err != nil {
		s.setState(SessionClosed)
		return fmt.Errorf("hello: %w", err)
	}
	s.setState(SessionHelloSent)

	sub := s.dist.Subscribe(s.cfg.SessionID)
	s.setState(SessionStreaming)
	s.log.Info("session streaming", "agent_id", s.cfg.AgentID)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.writeLoop(ctx, sub)
	}()
	go func() {
		defer wg.Done()
		s.readLoop()
	}()

	select {
	case <-ctx.Done():
		s.Close()
	case <-s.done:
	}
	wg.Wait()
	s.setState(SessionClosed)
	s.log.Info("session closed")
	return nil
}

// Close initiates teardown. Safe to call from any goroutine, multiple times.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.setState(SessionClosing)
		close(s.done)
		s.conn.Close()
	})
}

func (s *Session) teardown() {
	s.dist.Unsubscribe(s.cfg.SessionID)
	s.Close()
}

func (s *Session) sendHello() error {
	hello := helloMessage{
		Type:      "hello",
		AgentID:   s.cfg.AgentID,
		SessionID: s.cfg.SessionID,
		Version:   s.cfg.Version,
		Monitors:  s.engine.Monitors(),
	}
	data, err := json.Marshal(hello)
	if err != nil {
		return err
	}
	return s.write(textMessage, data)
}

func (s *Session) write(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(messageType, data)
}

// writeLoop forwards published frames to the connection. A write failure
// ends the session; the distributor's per-subscriber queue already absorbed
// any backlog. Losing the subscription (the distributor was reset, or the
// subscriber id was replaced) also ends the session, otherwise the viewer
// would sit on a live connection that never receives another frame.
func (s *Session) writeLoop(ctx context.Context, sub *Subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-sub.Done():
			s.log.Debug("subscription ended, closing session")
			s.Close()
			return
		case frame := <-sub.Frames():
			if err := s.write(binaryMessage, frame.MarshalBinary()); err != nil {
				s.log.Debug("frame write failed", "error", err.Error())
				s.Close()
				return
			}
		}
	}
}

// readLoop consumes viewer commands. Malformed or failing commands are
// logged and answered with a best-effort error message; only a transport
// error ends the session.
func (s *Session) readLoop() {
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				s.log.Debug("read failed", "error", err.Error())
			}
			s.Close()
			return
		}
		if messageType != textMessage {
			s.log.Debug("ignoring non-text message", "message_type", messageType)
			continue
		}

		cmd, err := ParseCommand(data)
		if err != nil {
			s.log.Warn("bad command", "error", err.Error())
			s.sendError(err.Error())
			continue
		}
		s.handleCommand(cmd)
	}
}

func (s *Session) handleCommand(cmd Command) {
	switch c := cmd.(type) {
	case MonitorSelectCmd:
		if err := s.engine.SelectMonitor(c.MonitorID); err != nil {
			s.log.Warn("monitor select failed",
				logging.KeyMonitorID, c.MonitorID, "error", err.Error())
			if errors.Is(err, ErrMonitorNotFound) {
				s.sendError(fmt.Sprintf("unknown monitor %q", c.MonitorID))
			} else {
				s.sendError(err.Error())
			}
		}
	case QualityCmd:
		s.engine.SetQuality(c.Quality)
	case UnknownCmd:
		s.log.Debug("ignoring unknown command", "command_type", c.Type)
	default:
		if err := s.dispatcher.Dispatch(cmd); err != nil {
			s.log.Warn("input dispatch failed", "error", err.Error())
		}
	}
}

// sendError is best-effort; a failed error reply is not itself an error.
func (s *Session) sendError(msg string) {
	data, err := json.Marshal(errorMessage{Type: "error", Message: msg})
	if err != nil {
		return
	}
	if err := s.write(textMessage, data); err != nil {
		s.log.Debug("error reply failed", "error", err.Error())
	}
}
