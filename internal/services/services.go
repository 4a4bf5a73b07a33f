// Package services holds the meeting session and transcription use cases.
// Every operation returns *Error for failures callers should see.
package services

import (
	"github.com/neoxmeet/meet-backend/internal/broadcast"
	"github.com/neoxmeet/meet-backend/internal/media"
	"github.com/neoxmeet/meet-backend/internal/providers"
	"github.com/neoxmeet/meet-backend/internal/queue"
	"github.com/neoxmeet/meet-backend/internal/repository"
	"github.com/neoxmeet/meet-backend/internal/storage"
	"github.com/sirupsen/logrus"
)

// Services holds all service instances
type Services struct {
	Sessions      *SessionManager
	Transcription *TranscriptionService
	Ingestion     *IngestionPipeline
	Recap         *RecapSynthesizer
	Language      *LanguageService
}

// Providers groups the optional AI capabilities. Nil members disable the
// operations that need them.
type Providers struct {
	Transcriber providers.Transcriber
	Summarizer  providers.Summarizer
	Translator  providers.Translator
	Synthesizer providers.SpeechSynthesizer
}

// Options carries the collaborators shared by the services
type Options struct {
	Store       *repository.Store
	Queue       queue.Queue
	Minter      CredentialMinter
	Broadcaster broadcast.Broadcaster
	Media       interface {
		media.Prober
		media.Normalizer
	}
	Archiver   storage.Archiver
	Providers  Providers
	Limits     IngestionLimits
	LiveKitURL string
}

// NewServices creates all service instances
func NewServices(opts Options, logger logrus.FieldLogger) *Services {
	sessions := NewSessionManager(opts.Store.Rooms, opts.Store.Sessions, logger.WithField("component", "sessions"))

	return &Services{
		Sessions:      sessions,
		Transcription: NewTranscriptionService(sessions, opts.Minter, opts.Queue, opts.LiveKitURL, logger.WithField("component", "transcription")),
		Ingestion: NewIngestionPipeline(opts.Limits, IngestionDeps{
			Prober:      opts.Media,
			Normalizer:  opts.Media,
			Transcriber: opts.Providers.Transcriber,
			Archiver:    opts.Archiver,
			Store:       opts.Store,
			Broadcaster: opts.Broadcaster,
		}, logger.WithField("component", "ingestion")),
		Recap:    NewRecapSynthesizer(opts.Store, opts.Providers.Summarizer, logger.WithField("component", "recap")),
		Language: NewLanguageService(opts.Providers.Translator, opts.Providers.Synthesizer),
	}
}
