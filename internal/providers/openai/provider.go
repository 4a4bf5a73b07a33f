package openai

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/neoxmeet/meet-backend/internal/config"
	"github.com/neoxmeet/meet-backend/internal/providers"
	"github.com/sashabaranov/go-openai"
)

const (
	recapPrompt = "Summarize the meeting transcript. Respond with a JSON object with the fields " +
		"cleanedTranscript (string), summary (string), decisions (array of strings, in the order they were made) " +
		"and actionItems (array of strings). Use empty values when the transcript has none."
	maxTranslationTokens = 500
	defaultVoice         = "alloy"
	defaultChatModel     = "gpt-4o-mini"
)

// Provider implements every capability on top of the OpenAI API
type Provider struct {
	client       *openai.Client
	summaryModel string
}

var (
	_ providers.Transcriber       = (*Provider)(nil)
	_ providers.Summarizer        = (*Provider)(nil)
	_ providers.Translator        = (*Provider)(nil)
	_ providers.SpeechSynthesizer = (*Provider)(nil)
)

// NewProvider creates a new OpenAI provider. It returns
// providers.ErrNotConfigured when no API key is set.
func NewProvider(cfg config.AIConfig) (*Provider, error) {
	if cfg.OpenAIKey == "" {
		return nil, providers.ErrNotConfigured
	}

	clientCfg := openai.DefaultConfig(cfg.OpenAIKey)
	if cfg.OpenAIBaseURL != "" {
		clientCfg.BaseURL = cfg.OpenAIBaseURL
	}

	model := cfg.SummaryModel
	if model == "" {
		model = defaultChatModel
	}

	return &Provider{
		client:       openai.NewClientWithConfig(clientCfg),
		summaryModel: model,
	}, nil
}

// Transcribe requests a verbose_json transcription so segment timings are returned
func (p *Provider) Transcribe(ctx context.Context, audioPath string) (*providers.Transcription, error) {
	resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("openai transcription: %w", err)
	}

	result := &providers.Transcription{
		Text:     resp.Text,
		Language: resp.Language,
	}
	for _, s := range resp.Segments {
		result.Segments = append(result.Segments, providers.TranscriptionSegment{
			StartSec: s.Start,
			EndSec:   s.End,
			Text:     strings.TrimSpace(s.Text),
			// Whisper labels spans only by segment id.
			Speaker: strconv.Itoa(s.ID),
		})
	}
	return result, nil
}

// Summarize asks for a JSON object recap of the transcript
func (p *Provider) Summarize(ctx context.Context, transcript string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.summaryModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: recapPrompt},
			{Role: openai.ChatMessageRoleUser, Content: transcript},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai summarize: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// Translate returns only the translated text
func (p *Provider) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     p.summaryModel,
		MaxTokens: maxTranslationTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: translationPrompt(text, sourceLang, targetLang)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai translate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai translate: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Synthesize renders speech as mp3
func (p *Provider) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if voice == "" {
		voice = defaultVoice
	}

	var body io.ReadCloser
	body, err := p.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	defer body.Close()

	audio, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read speech: %w", err)
	}
	return audio, nil
}

func translationPrompt(text, sourceLang, targetLang string) string {
	var b strings.Builder
	b.WriteString("Translate the following text")
	if sourceLang != "" {
		b.WriteString(" from ")
		b.WriteString(sourceLang)
	}
	b.WriteString(" to ")
	b.WriteString(targetLang)
	b.WriteString(". Return only the translated content.\n\n")
	b.WriteString(text)
	return b.String()
}
