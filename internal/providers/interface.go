// Package providers declares the AI capabilities the services depend on.
// Implementations are constructed once at startup and injected.
package providers

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by capabilities whose credentials are missing
var ErrNotConfigured = errors.New("provider not configured")

// Transcriber turns an audio file into text with per-segment timings when the
// provider can produce them.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*Transcription, error)
}

// Summarizer produces a structured recap of a rendered transcript. The result
// is the raw JSON document returned by the model; callers parse it leniently.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

// Translator translates free text. sourceLang may be empty.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// SpeechSynthesizer renders text to mp3 audio
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// Transcription is a provider transcription result
type Transcription struct {
	Text     string
	Language string
	Segments []TranscriptionSegment
}

// TranscriptionSegment is a timed span in seconds from the start of the clip.
// Speaker is the provider's label for the span, empty when it has none.
type TranscriptionSegment struct {
	StartSec float64
	EndSec   float64
	Text     string
	Speaker  string
}

// RecapFields are the four fields the summarizer is asked to return
var RecapFields = []string{"cleanedTranscript", "summary", "decisions", "actionItems"}
