package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"consent-reading-service/internal/models"
	"consent-reading-service/internal/service/audio"
	"consent-reading-service/internal/service/match"
	"consent-reading-service/internal/service/reading"
	"consent-reading-service/internal/service/stt"
)

const (
	publishTimeout = 5 * time.Second
	closeGrace     = time.Second
)

// Error codes sent to the client that do not come from a recognizer.
const (
	codeProtocol = "protocol"
	codeSession  = "session"
)

// conn is one WebSocket connection and the reading session it owns. It is the
// session's Observer and Capture; listen notices go to the client after the
// inner capture accepted the phase.
type conn struct {
	g       *Gateway
	ws      *websocket.Conn
	id      string
	req     sessionRequest
	total   int
	started time.Time
	logger  zerolog.Logger

	session *reading.Session
	inner   reading.Capture
	text    *textCapture
	audio   *audio.Handler

	writeMu sync.Mutex

	publishing sync.WaitGroup
	finishOnce sync.Once
}

func (c *conn) send(msgType string, data any) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(c.g.cfg.WriteTimeout))
	err := c.ws.WriteJSON(models.ServerMessage{Type: msgType, SessionID: c.id, Data: data})
	if err != nil {
		c.logger.Debug().Err(err).Str("type", msgType).Msg("Failed to write message")
	}
}

func (c *conn) sendError(index int, code, message string) {
	c.send(models.ServerError, models.ErrorPayload{StatementIndex: index, Code: code, Message: message})
}

// serve runs the read loop until the client leaves or asks to stop.
func (c *conn) serve(ctx context.Context) {
	defer c.close()

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn().Err(err).Msg("WebSocket read failed")
			}
			return
		}

		switch mt {
		case websocket.BinaryMessage:
			c.handleAudio(ctx, data)
		case websocket.TextMessage:
			if stop := c.handleMessage(data); stop {
				return
			}
		}
	}
}

func (c *conn) handleAudio(ctx context.Context, frame []byte) {
	if c.audio == nil {
		c.sendError(c.session.Progress().CurrentIndex, codeProtocol, "binary frames require audio mode")
		return
	}
	err := c.audio.SendAudio(ctx, frame)
	switch {
	case err == nil:
	case errors.Is(err, audio.ErrPhaseLimit):
		// The session has already been told through OnStreamError.
		c.logger.Debug().Err(err).Msg("Audio frame rejected")
	default:
		c.logger.Warn().Err(err).Msg("Failed to forward audio frame")
	}
}

// handleMessage processes one JSON frame and reports whether the connection
// should close.
func (c *conn) handleMessage(data []byte) bool {
	var msg models.ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError(-1, codeProtocol, "malformed JSON message")
		return false
	}
	if err := c.g.cfg.Validator.Validate(msg); err != nil {
		c.sendError(-1, codeProtocol, err.Error())
		return false
	}

	switch msg.Type {
	case models.ClientStart:
		if err := c.session.Start(); err != nil {
			c.reportSessionError(err)
		}
	case models.ClientRelisten:
		if err := c.session.Relisten(); err != nil {
			c.reportSessionError(err)
		}
	case models.ClientStop:
		c.session.Stop()
		return true
	case models.ClientFragment, models.ClientError, models.ClientEnded:
		c.handleRecognizerEvent(msg)
	}
	return false
}

// reportSessionError tells the client why a command was refused. A capture
// failure carries its recognizer code so the client can offer a relisten.
func (c *conn) reportSessionError(err error) {
	code := codeSession
	var se *stt.StreamError
	if errors.As(err, &se) {
		code = string(se.Code)
		c.g.cfg.Metrics.RecordStreamError(code)
	}
	c.sendError(c.session.Progress().CurrentIndex, code, err.Error())
}

func (c *conn) handleRecognizerEvent(msg models.ClientMessage) {
	if c.text == nil {
		c.sendError(-1, codeProtocol, "recognizer events require text mode")
		return
	}

	var delivered bool
	switch msg.Type {
	case models.ClientFragment:
		delivered = c.text.fragment(msg.Phase, msg.Text, msg.IsFinal)
	case models.ClientError:
		var cause error
		if msg.Text != "" {
			cause = errors.New(msg.Text)
		}
		delivered = c.text.fail(msg.Phase, stt.NewStreamError(stt.ParseErrorCode(msg.Code), cause))
	case models.ClientEnded:
		delivered = c.text.end(msg.Phase)
	}
	if !delivered {
		c.logger.Debug().Str("type", msg.Type).Uint64("phase", msg.Phase).Msg("Dropped event outside a listening phase")
	}
}

// close stops the session, waits for in-flight publishes and reports the
// session outcome once.
func (c *conn) close() {
	c.session.Stop()
	c.publishing.Wait()
	c.finish()

	c.writeMu.Lock()
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGrace))
	c.writeMu.Unlock()
	c.ws.Close()
}

// goAway tells the client the server is leaving and closes the socket. The
// read loop then fails and close reports the session outcome.
func (c *conn) goAway() {
	c.writeMu.Lock()
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
		time.Now().Add(closeGrace))
	c.writeMu.Unlock()
	c.ws.Close()
}

// StartListening opens the phase on the inner capture, then tells the client
// which statement to read.
func (c *conn) StartListening(req reading.ListenRequest, cb stt.Callback) error {
	if err := c.inner.StartListening(req, cb); err != nil {
		return err
	}
	c.g.cfg.Metrics.RecordListenPhase()
	c.send(models.ServerListen, models.ListenPayload{
		StatementIndex: req.Statement.Index,
		Phase:          req.Phase,
		Locale:         req.Statement.Language.SpeechLocale(),
		Text:           req.Statement.Text,
	})
	return nil
}

func (c *conn) StopListening() {
	c.inner.StopListening()
	c.send(models.ServerStopListening, nil)
}

func (c *conn) OnMatch(u reading.MatchUpdate) {
	c.g.cfg.Metrics.RecordFragment(u.IsFinal)
	c.send(models.ServerMatch, u)
}

func (c *conn) OnVerdict(index int, v match.Verdict) {
	c.g.cfg.Metrics.RecordValidation(string(v.Reason), v.Score)
	c.send(models.ServerVerdict, struct {
		StatementIndex int `json:"statementIndex"`
		match.Verdict
	}{index, v})

	if !v.IsValid {
		return
	}
	c.g.cfg.Metrics.RecordStatementCompleted()
	c.publish(false, models.EventStatementCompleted, models.StatementCompleted{
		EventType:         models.EventStatementCompleted,
		SessionID:         c.id,
		Reference:         c.req.reference,
		Category:          string(c.req.category),
		Language:          string(c.req.language),
		StatementIndex:    index,
		Total:             c.total,
		SimilarityPercent: v.SimilarityPercent,
		Score:             v.Score,
		Timestamp:         time.Now().UnixMilli(),
	})
}

func (c *conn) OnProgress(p reading.Progress) {
	c.send(models.ServerProgress, p)
}

func (c *conn) OnStreamError(index int, err error) {
	code := stt.CodeOf(err)
	c.g.cfg.Metrics.RecordStreamError(string(code))
	c.sendError(index, string(code), err.Error())
}

// onComplete runs outside the session lock once every statement is verified.
func (c *conn) onComplete() {
	c.send(models.ServerComplete, c.session.Progress())
	c.finish()
}

// finish records the session outcome and publishes the session event. The
// first caller wins; later callers wait for it.
func (c *conn) finish() {
	c.finishOnce.Do(func() {
		p := c.session.Progress()
		elapsed := time.Since(c.started)
		c.g.cfg.Metrics.RecordSessionEnd(p.IsComplete, elapsed.Seconds())

		completed := 0
		for _, done := range p.Completed {
			if done {
				completed++
			}
		}
		eventType := models.EventSessionStopped
		if p.IsComplete {
			eventType = models.EventSessionCompleted
		}
		c.logger.Info().
			Str("outcome", eventType).
			Int("completed", completed).
			Dur("duration", elapsed).
			Msg("Reading session ended")

		c.publishNow(true, eventType, models.SessionCompleted{
			EventType:  eventType,
			SessionID:  c.id,
			Reference:  c.req.reference,
			Category:   string(c.req.category),
			Language:   string(c.req.language),
			Completed:  completed,
			Total:      c.total,
			DurationMs: elapsed.Milliseconds(),
			Timestamp:  time.Now().UnixMilli(),
		})
	})
}

// publish sends an event without blocking the caller, which may hold the
// session lock.
func (c *conn) publish(completedTopic bool, eventType string, event any) {
	if c.g.cfg.Publisher == nil {
		return
	}
	c.publishing.Add(1)
	go func() {
		defer c.publishing.Done()
		c.publishNow(completedTopic, eventType, event)
	}()
}

func (c *conn) publishNow(completedTopic bool, eventType string, event any) {
	pub := c.g.cfg.Publisher
	if pub == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	var err error
	if completedTopic {
		err = pub.PublishCompleted(ctx, c.id, eventType, event)
	} else {
		err = pub.PublishProgress(ctx, c.id, eventType, event)
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("eventType", eventType).Msg("Failed to publish reading event")
	}
}
