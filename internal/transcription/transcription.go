// Package transcription turns an audio file into plain text through one of
// the configured speech-to-text back ends.
//
// The back end is held in a process-wide lazy.Value: it is created on the
// first request, reused afterwards, and can be torn down with Reset.
package transcription

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/searchandrescuegg/firstaid/internal/config"
	"github.com/searchandrescuegg/firstaid/internal/emergency"
	"github.com/searchandrescuegg/firstaid/internal/lazy"
	"github.com/searchandrescuegg/firstaid/internal/openai"
	"github.com/searchandrescuegg/firstaid/pkg/asr"
)

const (
	ProviderASR    = "asr"
	ProviderOpenAI = "openai"
	ProviderGoogle = "google"
)

// Handle is the process-wide transcriber handle.
type Handle = lazy.Value[emergency.Transcriber]

// NewHandle returns a lazily initialised transcriber for the provider named
// in c.TranscriptionProvider.
func NewHandle(c *config.Config) *Handle {
	return newHandle(c, newTranscriber)
}

func newHandle(c *config.Config, build func(context.Context, *config.Config) (emergency.Transcriber, error)) *Handle {
	return lazy.New(func(ctx context.Context) (emergency.Transcriber, error) {
		// the handle outlives the request that first builds it, and some
		// provider clients keep their constructor context for token refresh
		t, err := build(context.WithoutCancel(ctx), c)
		if err != nil {
			return nil, err
		}
		slog.Info("transcriber initialised", slog.String("provider", c.TranscriptionProvider))
		return t, nil
	})
}

func newTranscriber(ctx context.Context, c *config.Config) (emergency.Transcriber, error) {
	switch strings.ToLower(c.TranscriptionProvider) {
	case ProviderASR:
		if c.ASREndpoint == "" {
			return nil, emergency.Configuration("ASR_ENDPOINT is not set")
		}
		return &ASRTranscriber{client: asr.NewASRClient(c.ASREndpoint, c.ASRTimeout, &http.Client{})}, nil
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return nil, emergency.Configuration("OPENAI_API_KEY is not set")
		}
		return &OpenAITranscriber{client: openai.NewClientFromKey(c.OpenAIAPIKey, c.OpenAIBaseURL, c.OpenAITranscriptionModel, c.OpenAITimeout)}, nil
	case ProviderGoogle:
		return NewGoogleTranscriber(ctx, c.GoogleSpeechLanguage)
	default:
		return nil, emergency.Configuration("unknown transcription provider %q", c.TranscriptionProvider)
	}
}

// Adapter resolves the process-wide handle on every call so the first
// request pays for initialisation.
type Adapter struct {
	handle *Handle
}

func NewAdapter(handle *Handle) *Adapter {
	return &Adapter{handle: handle}
}

func (a *Adapter) Transcribe(ctx context.Context, audioPath string) (string, error) {
	t, err := a.handle.Get(ctx)
	if err != nil {
		if emergency.KindOf(err) == emergency.KindConfiguration {
			return "", err
		}
		return "", emergency.Upstream("initialise transcriber", err)
	}

	text, err := t.Transcribe(ctx, audioPath)
	if err != nil {
		return "", fmt.Errorf("failed to transcribe audio: %w", err)
	}

	return text, nil
}

type ASRTranscriber struct {
	client *asr.ASRClient
}

func (t *ASRTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	resp, err := t.client.TranscribeFile(ctx, audioPath)
	if err != nil {
		return "", emergency.Upstream("asr", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

type OpenAITranscriber struct {
	client *openai.OpenAIClient
}

func (t *OpenAITranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	text, err := t.client.Transcribe(ctx, audioPath)
	if err != nil {
		return "", emergency.Upstream("openai whisper", err)
	}
	return text, nil
}
