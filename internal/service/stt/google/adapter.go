// Package google provides a Google Cloud Speech-to-Text adapter.
package google

import (
	"context"
	"errors"
	"io"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"consent-reading-service/internal/service/stt"
)

// Config holds recognition settings for one streaming session.
type Config struct {
	LanguageCode   string
	SampleRateHz   int32
	InterimResults bool
	AudioEncoding  string
}

// DefaultConfig returns telephony-grade LINEAR16 English with interim results.
func DefaultConfig() Config {
	return Config{
		LanguageCode:   "en-US",
		SampleRateHz:   8000,
		InterimResults: true,
		AudioEncoding:  "LINEAR16",
	}
}

// parseAudioEncoding maps an encoding name to the proto enum, falling back to
// LINEAR16. Names are case sensitive.
func parseAudioEncoding(s string) speechpb.RecognitionConfig_AudioEncoding {
	switch s {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}

// streamErrorCode classifies a gRPC failure from the recognizer.
func streamErrorCode(err error) stt.ErrorCode {
	if errors.Is(err, context.Canceled) {
		return stt.CodeAborted
	}
	switch status.Code(err) {
	case codes.Canceled, codes.Aborted:
		return stt.CodeAborted
	case codes.PermissionDenied, codes.Unauthenticated:
		return stt.CodePermissionDenied
	case codes.DeadlineExceeded, codes.OutOfRange:
		return stt.CodeNoSpeech
	case codes.Unavailable, codes.ResourceExhausted:
		return stt.CodeAudioCaptureError
	default:
		return stt.CodeUnknown
	}
}

// Adapter implements stt.Adapter using Google Cloud Speech-to-Text.
// A single speech.Client can back many adapters; each Start opens its own
// stream.
type Adapter struct {
	client *speech.Client
	cfg    Config

	mu     sync.Mutex
	stream speechpb.Speech_StreamingRecognizeClient
	cb     stt.Callback
}

// NewClient creates a Speech client.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func NewClient(ctx context.Context) (*speech.Client, error) {
	return speech.NewClient(ctx)
}

// New creates a new Google STT adapter on a shared client.
func New(client *speech.Client, cfg Config) *Adapter {
	return &Adapter{client: client, cfg: cfg}
}

// Start begins a streaming recognition session and sends the initial config.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	stream, err := a.client.StreamingRecognize(ctx)
	if err != nil {
		return stt.NewStreamError(streamErrorCode(err), err)
	}

	a.mu.Lock()
	a.stream = stream
	a.cb = cb
	a.mu.Unlock()

	// Send streaming config as the first message
	return stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:        parseAudioEncoding(a.cfg.AudioEncoding),
					SampleRateHertz: a.cfg.SampleRateHz,
					LanguageCode:    a.cfg.LanguageCode,
				},
				InterimResults: a.cfg.InterimResults,
			},
		},
	})
}

// SendAudio sends audio bytes to Google Speech-to-Text.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	a.mu.Lock()
	stream := a.stream
	a.mu.Unlock()
	if stream == nil {
		return errors.New("google stt: stream not started")
	}
	return stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	})
}

// Close half-closes the stream; pending results still arrive on Listen.
func (a *Adapter) Close() error {
	a.mu.Lock()
	stream := a.stream
	a.mu.Unlock()
	if stream != nil {
		return stream.CloseSend()
	}
	return nil
}

// Listen receives transcript responses from Google and invokes callbacks.
// Should be called in a separate goroutine after Start().
func (a *Adapter) Listen() {
	a.mu.Lock()
	stream, cb := a.stream, a.cb
	a.mu.Unlock()

	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			cb.OnEnd()
			return
		}
		if err != nil {
			cb.OnError(stt.NewStreamError(streamErrorCode(err), err))
			return
		}
		dispatch(resp, cb)
	}
}

func dispatch(resp *speechpb.StreamingRecognizeResponse, cb stt.Callback) {
	for _, r := range resp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		alt := r.Alternatives[0]
		if r.IsFinal {
			cb.OnFinal(alt.Transcript, float64(alt.Confidence))
		} else {
			cb.OnPartial(alt.Transcript)
		}
	}
}
