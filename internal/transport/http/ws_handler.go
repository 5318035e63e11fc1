package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"quizzr-service/internal/app"
	"quizzr-service/internal/domain"
)

// WSHandler streams a server-clock countdown for one attempt and accepts the
// final submission over the same socket.
type WSHandler struct {
	quizzes  *app.QuizService
	ledger   *app.AttemptLedger
	engine   *app.ScoringEngine
	tick     time.Duration
	now      func() time.Time
	upgrader websocket.Upgrader

	// Connection liveness: every write must finish within writeWait and the
	// peer must answer a ping (sent every pingPeriod) within pongWait.
	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
}

const maxInboundBytes = 64 << 10

func NewWSHandler(quizzes *app.QuizService, ledger *app.AttemptLedger, engine *app.ScoringEngine, tick time.Duration) *WSHandler {
	return NewWSHandlerWithClock(quizzes, ledger, engine, tick, time.Now)
}

// NewWSHandlerWithClock allows deterministic countdowns in tests.
func NewWSHandlerWithClock(quizzes *app.QuizService, ledger *app.AttemptLedger, engine *app.ScoringEngine, tick time.Duration, now func() time.Time) *WSHandler {
	if tick <= 0 {
		tick = time.Second
	}
	return &WSHandler{
		quizzes: quizzes,
		ledger:  ledger,
		engine:  engine,
		tick:    tick,
		now:     now,

		writeWait:  10 * time.Second,
		pongWait:   60 * time.Second,
		pingPeriod: 54 * time.Second,
		upgrader:   websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type submitPayload struct {
	Responses []domain.SubmittedAnswer `json:"responses"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type startedPayload struct {
	StartedAt        time.Time `json:"startedAt"`
	Deadline         time.Time `json:"deadline"`
	RemainingSeconds int64     `json:"remainingSeconds"`
}

type tickPayload struct {
	RemainingSeconds int64 `json:"remainingSeconds"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request, registers the start and pushes ticks until
// the deadline, a submission, or disconnect.
func (h *WSHandler) ServeWS(c *gin.Context) {
	ctx := c.Request.Context()
	slug := c.Param("slug")
	userID := currentUser(c)
	student := app.Student{ID: c.Query("studentId"), Name: c.Query("name")}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("quiz", slug).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	attempt, err := h.ledger.RegisterStart(ctx, slug, userID, student)
	if err != nil {
		h.writeError(conn, err)
		return
	}
	quiz, err := h.quizzes.GetQuiz(ctx, slug)
	if err != nil {
		h.writeError(conn, err)
		return
	}
	deadline := attempt.Deadline(quiz.Limit())

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	stopTicks := make(chan struct{})
	writerDone := make(chan struct{})
	ticksDone := make(chan struct{})

	// Only the writer goroutine touches the connection for writes. A failed
	// write closes the socket, which also ends the read loop below.
	go func() {
		defer close(writerDone)
		ping := time.NewTicker(h.pingPeriod)
		defer ping.Stop()
		for {
			var err error
			select {
			case msg, ok := <-send:
				if !ok {
					_ = conn.SetWriteDeadline(time.Now().Add(h.writeWait))
					_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(h.writeWait))
				err = conn.WriteJSON(msg)
			case <-ping.C:
				err = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeWait))
			}
			if err != nil {
				log.Debug().Err(err).Str("quiz", slug).Str("user", userID).Msg("ws write error")
				_ = conn.Close()
				return
			}
		}
	}()

	// push never blocks on a dead writer.
	push := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}

	push(outboundMessage[any]{Type: "started", Payload: startedPayload{
		StartedAt:        attempt.StartedAt,
		Deadline:         deadline,
		RemainingSeconds: remainingSeconds(deadline, h.now()),
	}})

	go func() {
		defer close(ticksDone)
		ticker := time.NewTicker(h.tick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				now := h.now()
				expired := !now.Before(deadline)
				msg := outboundMessage[any]{Type: "tick", Payload: tickPayload{RemainingSeconds: remainingSeconds(deadline, now)}}
				if expired {
					msg = outboundMessage[any]{Type: "expired", Payload: tickPayload{RemainingSeconds: 0}}
				}
				select {
				case send <- msg:
				case <-closeSignals:
					return
				case <-writerDone:
					return
				}
				if expired {
					return
				}
			case <-stopTicks:
				return
			case <-closeSignals:
				return
			}
		}
	}()

	conn.SetReadLimit(maxInboundBytes)
	_ = conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	ticking := true
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "submit":
			var payload submitPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid submit payload"}})
				continue
			}
			result, err := h.engine.SubmitAttempt(ctx, slug, userID, payload.Responses)
			if err != nil {
				push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: messageFor(err)}})
				continue
			}
			if ticking {
				close(stopTicks)
				ticking = false
			}
			push(outboundMessage[any]{Type: "result", Payload: result})
		default:
			push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}

	close(closeSignals)
	<-ticksDone
	close(send)
	<-writerDone
}

func (h *WSHandler) writeError(conn *websocket.Conn, err error) {
	_ = conn.SetWriteDeadline(time.Now().Add(h.writeWait))
	_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: messageFor(err)}})
}

// remainingSeconds rounds up so a client never shows 0 before "expired".
func remainingSeconds(deadline, now time.Time) int64 {
	remaining := deadline.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int64((remaining + time.Second - 1) / time.Second)
}
