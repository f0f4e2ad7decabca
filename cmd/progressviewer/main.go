// Command progressviewer follows reading progress: it consumes the progress
// and completed Kafka topics, logs every event and rebroadcasts it to
// WebSocket clients on /ws.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"consent-reading-service/internal/events"
)

// readingEvent holds the fields shared by statement and session events.
type readingEvent struct {
	EventType         string `json:"eventType"`
	SessionID         string `json:"sessionId"`
	Reference         string `json:"reference,omitempty"`
	Category          string `json:"category"`
	StatementIndex    *int   `json:"statementIndex,omitempty"`
	SimilarityPercent int    `json:"similarityPercent,omitempty"`
	Completed         int    `json:"completed,omitempty"`
	Total             int    `json:"total"`

	raw json.RawMessage
}

// Hub manages WebSocket connections
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan json.RawMessage
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.Mutex
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan json.RawMessage, 100),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

func (h *Hub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
			}
			h.mu.Unlock()
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			n := len(h.clients)
			h.mu.Unlock()
			log.Info().Int("clients", n).Msg("Client connected")

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			n := len(h.clients)
			h.mu.Unlock()
			log.Info().Int("clients", n).Msg("Client disconnected")

		case payload := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					log.Warn().Err(err).Msg("Write error")
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local dev
	},
}

func wsHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("WebSocket upgrade error")
			return
		}
		hub.register <- conn

		// Keep connection alive, handle disconnects
		go func() {
			defer func() {
				hub.unregister <- conn
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}

func consumeKafka(ctx context.Context, hub *Hub, brokers []string, topic string, since time.Duration) error {
	// Partition reader without a consumer group keeps replays independent.
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, time.Now().Add(-since)); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Failed to seek, reading from the start")
	}
	log.Info().Str("topic", topic).Dur("since", since).Msg("Consuming from Kafka")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Err(err).Str("topic", topic).Msg("Kafka read error")
			time.Sleep(time.Second)
			continue
		}

		var event readingEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("Skipping malformed event")
			continue
		}
		event.raw = msg.Value
		logEvent(event)

		select {
		case hub.broadcast <- event.raw:
		case <-ctx.Done():
			return nil
		}
	}
}

func logEvent(e readingEvent) {
	ev := log.Info().
		Str("eventType", e.EventType).
		Str("sessionId", e.SessionID).
		Str("category", e.Category).
		Int("total", e.Total)
	if e.Reference != "" {
		ev = ev.Str("reference", e.Reference)
	}
	if e.StatementIndex != nil {
		ev = ev.Int("statementIndex", *e.StatementIndex).Int("similarityPercent", e.SimilarityPercent)
	} else {
		ev = ev.Int("completed", e.Completed)
	}
	ev.Msg("Reading event")
}

func main() {
	addr := flag.String("addr", ":8081", "HTTP listen address")
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topicProgress := flag.String("topic-progress", events.DefaultTopicProgress, "Statement progress topic")
	topicCompleted := flag.String("topic-completed", events.DefaultTopicCompleted, "Session completed topic")
	since := flag.Duration("since", time.Hour, "Replay events newer than this")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := newHub()
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler(hub))
	server := &http.Server{Addr: *addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	brokerList := strings.Split(*brokers, ",")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.run(gctx)
		return nil
	})
	g.Go(func() error { return consumeKafka(gctx, hub, brokerList, *topicProgress, *since) })
	g.Go(func() error { return consumeKafka(gctx, hub, brokerList, *topicCompleted, *since) })
	g.Go(func() error {
		log.Info().Str("addr", *addr).Strs("brokers", brokerList).Msg("Progress viewer started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Progress viewer failed")
	}
}
