// Package server exposes the emergency pipeline over HTTP.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/searchandrescuegg/firstaid/internal/emergency"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	detailProcessingAudio   = "error processing audio"
	detailAnalyzingImage    = "error analyzing image"
	detailGeneratingAid     = "error generating first aid response"
	detailInitiatingCall    = "error initiating emergency call"
	detailRetrievingStatus  = "error retrieving call status"
	detailCallNotConfigured = "emergency calling is not configured"
)

type Server struct {
	transcriber emergency.Transcriber
	detector    emergency.Detector
	narrator    emergency.Narrator
	caller      emergency.Caller

	maxUploadBytes int64
	maxJSONBytes   int64
	tempDir        string
	allowedOrigins []string
	results        *resultCache
}

type Options struct {
	MaxUploadBytes int64
	MaxJSONBytes   int64
	AllowedOrigins []string

	// TempDir holds per-request uploads; empty means os.TempDir().
	TempDir string

	// ResultCacheSize and ResultCacheTTL bound the per-upload result cache;
	// zero disables it.
	ResultCacheSize int
	ResultCacheTTL  time.Duration
}

func New(transcriber emergency.Transcriber, detector emergency.Detector, narrator emergency.Narrator, caller emergency.Caller, opts Options) *Server {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{
		transcriber:    transcriber,
		detector:       detector,
		narrator:       narrator,
		caller:         caller,
		maxUploadBytes: opts.MaxUploadBytes,
		maxJSONBytes:   opts.MaxJSONBytes,
		tempDir:        opts.TempDir,
		allowedOrigins: opts.AllowedOrigins,
		results:        newResultCache(opts.ResultCacheSize, opts.ResultCacheTTL),
	}
}

// Handler returns the router wrapped in otel instrumentation.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.handleHealth)

	r.Post("/transcribe-audio", s.handleTranscribeAudio)
	r.Post("/analyze-image", s.handleAnalyzeImage)
	r.Post("/first-aid", s.handleFirstAid)
	r.Post("/emergency-call", s.handleEmergencyCall)
	r.Post("/call-status", s.handleCallStatus)

	return otelhttp.NewHandler(r, "firstaid",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
