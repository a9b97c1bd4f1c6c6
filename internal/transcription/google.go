package transcription

import (
	"context"
	"fmt"
	"os"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/searchandrescuegg/firstaid/internal/emergency"
)

// GoogleTranscriber uses synchronous Speech-to-Text recognition. The client
// reads GOOGLE_APPLICATION_CREDENTIALS.
type GoogleTranscriber struct {
	client   *speech.Client
	language string
}

func NewGoogleTranscriber(ctx context.Context, language string) (*GoogleTranscriber, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, emergency.Configuration("failed to create google speech client: %s", err.Error())
	}
	return &GoogleTranscriber{client: c, language: language}, nil
}

func (g *GoogleTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return "", fmt.Errorf("failed to read audio file: %w", err)
	}

	// Encoding and sample rate are read from the WAV/FLAC header.
	resp, err := g.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			LanguageCode:               g.language,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		return "", emergency.Upstream("google speech", err)
	}

	return joinResults(resp.GetResults()), nil
}

func joinResults(results []*speechpb.SpeechRecognitionResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		if text := strings.TrimSpace(r.GetAlternatives()[0].GetTranscript()); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

func (g *GoogleTranscriber) Close() error {
	return g.client.Close()
}
