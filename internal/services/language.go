package services

import (
	"context"
	"errors"
	"strings"

	"github.com/neoxmeet/meet-backend/internal/providers"
)

const defaultVoice = "alloy"

// LanguageService exposes translation and text-to-speech
type LanguageService struct {
	translator  providers.Translator
	synthesizer providers.SpeechSynthesizer
}

// NewLanguageService creates a LanguageService. Either capability may be nil.
func NewLanguageService(translator providers.Translator, synthesizer providers.SpeechSynthesizer) *LanguageService {
	return &LanguageService{translator: translator, synthesizer: synthesizer}
}

// Translate returns text in targetLang. sourceLang is optional.
func (s *LanguageService) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	const op = "translate"

	text = strings.TrimSpace(text)
	targetLang = strings.TrimSpace(targetLang)
	if text == "" {
		return "", validationError(op, "text is required")
	}
	if len(targetLang) < 2 {
		return "", validationError(op, "targetLang must be at least 2 characters")
	}
	if s.translator == nil {
		return "", notConfigured(op, ErrProviderNotConfigured)
	}

	translated, err := s.translator.Translate(ctx, text, strings.TrimSpace(sourceLang), targetLang)
	if err != nil {
		if errors.Is(err, providers.ErrNotConfigured) {
			return "", notConfigured(op, err)
		}
		return "", upstreamError(op, "translation failed", err)
	}
	return translated, nil
}

// Speak renders text to mp3 audio
func (s *LanguageService) Speak(ctx context.Context, text, voice string) ([]byte, error) {
	const op = "synthesize speech"

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, validationError(op, "text is required")
	}
	if voice == "" {
		voice = defaultVoice
	}
	if s.synthesizer == nil {
		return nil, notConfigured(op, ErrProviderNotConfigured)
	}

	audio, err := s.synthesizer.Synthesize(ctx, text, voice)
	if err != nil {
		if errors.Is(err, providers.ErrNotConfigured) {
			return nil, notConfigured(op, err)
		}
		return nil, upstreamError(op, "speech synthesis failed", err)
	}
	return audio, nil
}

func notConfigured(op string, err error) error {
	return &Error{Kind: KindValidation, Op: op, Message: ErrProviderNotConfigured.Error(), Err: err}
}
