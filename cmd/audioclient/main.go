// Command audioclient reads statements in audio mode by streaming a WAV file
// to the gateway for every listening phase.
package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"flag"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"consent-reading-service/internal/models"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

// Stream audio in chunks to simulate real-time streaming
// At 16kHz 16-bit mono = 32000 bytes/second
// 100ms chunks = 3200 bytes
const chunkSize = 3200
const chunkInterval = 100 * time.Millisecond

var (
	errShortWAV = errors.New("file too short for a WAV header")
	errNotWAV   = errors.New("not a valid WAV file")
	errNotPCM   = errors.New("only PCM format supported")
)

type serverMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
}

// client serialises writes; the streamer and the reader loop both write.
type client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *client) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *client) writeAudio(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, b)
}

func main() {
	audioFile := flag.String("audio", "testdata/sample-16khz.wav", "Path to WAV file (16-bit mono PCM)")
	server := flag.String("server", "localhost:8080", "Gateway address")
	category := flag.String("category", "digital-arrest", "Statement category")
	language := flag.String("language", "en", "Statement language (en, te)")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	pcm, err := loadWAV(*audioFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", *audioFile).Msg("Failed to load audio")
	}

	u := url.URL{
		Scheme: "ws",
		Host:   *server,
		Path:   "/v1/sessions/stream",
		RawQuery: url.Values{
			"category": {*category},
			"language": {*language},
			"mode":     {"audio"},
		}.Encode(),
	}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal().Err(err).Str("url", u.String()).Msg("Failed to connect")
	}
	defer conn.Close()
	c := &client{conn: conn}
	log.Info().Str("url", u.String()).Msg("Connected")

	if err := c.writeJSON(models.ClientMessage{Type: models.ClientStart}); err != nil {
		log.Fatal().Err(err).Msg("Failed to start session")
	}

	var stopStream chan struct{}
	stop := func() {
		if stopStream != nil {
			close(stopStream)
			stopStream = nil
		}
	}
	defer stop()

	for {
		var msg serverMessage
		if err := conn.ReadJSON(&msg); err != nil {
			log.Fatal().Err(err).Msg("Connection closed")
		}

		switch msg.Type {
		case models.ServerListen:
			var p models.ListenPayload
			json.Unmarshal(msg.Data, &p)
			log.Info().Int("statement", p.StatementIndex).Str("locale", p.Locale).Str("text", p.Text).Msg("Streaming audio")
			stop()
			stopStream = make(chan struct{})
			go stream(c, pcm, stopStream)
		case models.ServerStopListening:
			stop()
		case models.ServerMatch:
			var m struct {
				Transcript string `json:"transcript"`
				IsFinal    bool   `json:"isFinal"`
			}
			json.Unmarshal(msg.Data, &m)
			log.Info().Bool("final", m.IsFinal).Str("transcript", m.Transcript).Msg("Heard")
		case models.ServerVerdict:
			log.Info().RawJSON("verdict", msg.Data).Msg("Verdict")
		case models.ServerError:
			log.Warn().RawJSON("error", msg.Data).Msg("Stream error, relistening")
			stop()
			if err := c.writeJSON(models.ClientMessage{Type: models.ClientRelisten}); err != nil {
				log.Fatal().Err(err).Msg("Failed to relisten")
			}
		case models.ServerComplete:
			log.Info().Str("sessionId", msg.SessionID).Msg("All statements verified")
			return
		}
	}
}

// stream sends pcm in real-time chunks, looping until stopped.
func stream(c *client, pcm []byte, stop <-chan struct{}) {
	ticker := time.NewTicker(chunkInterval)
	defer ticker.Stop()

	offset := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		end := min(offset+chunkSize, len(pcm))
		if err := c.writeAudio(pcm[offset:end]); err != nil {
			log.Error().Err(err).Msg("Failed to send audio")
			return
		}
		offset = end
		if offset >= len(pcm) {
			offset = 0
		}
	}
}

// loadWAV validates a 16-bit mono PCM WAV file and returns its samples.
func loadWAV(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) <= wavHeaderSize {
		return nil, errShortWAV
	}

	header := data[:wavHeaderSize]
	if !bytes.Equal(header[0:4], []byte("RIFF")) || !bytes.Equal(header[8:12], []byte("WAVE")) {
		return nil, errNotWAV
	}

	// Extract audio format info
	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	numChannels := binary.LittleEndian.Uint16(header[22:24])
	sampleRate := binary.LittleEndian.Uint32(header[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(header[34:36])

	log.Info().
		Uint16("format", audioFormat).
		Uint16("channels", numChannels).
		Uint32("sampleRate", sampleRate).
		Uint16("bitsPerSample", bitsPerSample).
		Msg("WAV file loaded")

	if audioFormat != 1 { // PCM
		return nil, errNotPCM
	}
	if sampleRate != 16000 {
		log.Warn().Uint32("sampleRate", sampleRate).Msg("Sample rate differs from the server default of 16000 Hz")
	}
	return data[wavHeaderSize:], nil
}
