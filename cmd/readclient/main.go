// Command readclient plays the browser's part in text mode: it reads every
// statement it is asked for, sending word-by-word interim fragments followed
// by a final one.
package main

import (
	"encoding/json"
	"flag"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"consent-reading-service/internal/models"
)

type serverMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
}

func main() {
	server := flag.String("server", "localhost:8080", "Gateway address")
	category := flag.String("category", "digital-arrest", "Statement category")
	language := flag.String("language", "en", "Statement language (en, te)")
	reference := flag.String("reference", "demo-"+time.Now().Format("150405"), "Caller reference")
	wordDelay := flag.Duration("word-delay", 150*time.Millisecond, "Delay between interim fragments")
	dropWords := flag.Int("drop-words", 0, "Omit this many trailing words from each reading")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	u := url.URL{
		Scheme: "ws",
		Host:   *server,
		Path:   "/v1/sessions/stream",
		RawQuery: url.Values{
			"category":  {*category},
			"language":  {*language},
			"reference": {*reference},
			"mode":      {"text"},
		}.Encode(),
	}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal().Err(err).Str("url", u.String()).Msg("Failed to connect")
	}
	defer conn.Close()
	log.Info().Str("url", u.String()).Msg("Connected")

	if err := conn.WriteJSON(models.ClientMessage{Type: models.ClientStart}); err != nil {
		log.Fatal().Err(err).Msg("Failed to start session")
	}

	var current models.ListenPayload
	for {
		var msg serverMessage
		if err := conn.ReadJSON(&msg); err != nil {
			log.Fatal().Err(err).Msg("Connection closed")
		}

		switch msg.Type {
		case models.ServerListen:
			json.Unmarshal(msg.Data, &current)
			log.Info().Int("statement", current.StatementIndex).Str("text", current.Text).Msg("Reading")
			if err := read(conn, current, *wordDelay, *dropWords); err != nil {
				log.Fatal().Err(err).Msg("Failed to send fragments")
			}
		case models.ServerVerdict:
			var v struct {
				IsValid bool `json:"isValid"`
			}
			json.Unmarshal(msg.Data, &v)
			log.Info().RawJSON("verdict", msg.Data).Msg("Verdict")
			if !v.IsValid {
				// Still listening on the same statement; read it in full.
				if err := read(conn, current, *wordDelay, 0); err != nil {
					log.Fatal().Err(err).Msg("Failed to send fragments")
				}
			}
		case models.ServerError:
			log.Warn().RawJSON("error", msg.Data).Msg("Error")
		case models.ServerComplete:
			log.Info().Str("sessionId", msg.SessionID).Msg("All statements verified")
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		default:
			log.Debug().Str("type", msg.Type).RawJSON("data", msg.Data).Msg("Received")
		}
	}
}

// read sends growing interim fragments for the statement, then the final.
func read(conn *websocket.Conn, p models.ListenPayload, delay time.Duration, drop int) error {
	words := strings.Fields(p.Text)
	if drop > 0 {
		words = words[:max(len(words)-drop, 0)]
	}
	for i := 1; i < len(words); i++ {
		frag := models.ClientMessage{Type: models.ClientFragment, Text: strings.Join(words[:i], " "), Phase: p.Phase}
		if err := conn.WriteJSON(frag); err != nil {
			return err
		}
		time.Sleep(delay)
	}
	return conn.WriteJSON(models.ClientMessage{
		Type:    models.ClientFragment,
		Text:    strings.Join(words, " "),
		IsFinal: true,
		Phase:   p.Phase,
	})
}
