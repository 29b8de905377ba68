package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"gregoryjjb/eightled/modes"
)

var wlog zerolog.Logger

func init() {
	wlog = log.With().Str("component", "server").Logger()
}

/////////////////////
// Response helpers

func RespondInternalServiceError(w http.ResponseWriter, err error) {
	w.WriteHeader(http.StatusInternalServerError)
	w.Write([]byte(err.Error()))
}

func RespondNotFoundError(w http.ResponseWriter, body string) {
	w.WriteHeader(http.StatusNotFound)
	if body == "" {
		body = "Not found"
	}
	RespondText(w, body)
}

func RespondBadRequest(w http.ResponseWriter, message string) {
	w.WriteHeader(http.StatusBadRequest)
	RespondText(w, message)
}

func RespondConflict(w http.ResponseWriter, message string) {
	w.WriteHeader(http.StatusConflict)
	RespondText(w, message)
}

func RespondText(w http.ResponseWriter, body string) {
	w.Write([]byte(body))
}

func RespondJSON(w http.ResponseWriter, body any) {
	w.Header().Add("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		RespondInternalServiceError(w, err)
	}
}

// queryInt reads an optional integer query parameter. A missing one
// yields 0.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	return n, nil
}

type indexData struct {
	Patterns []modes.Pattern
	Status   Status
	Build    BuildInfo
}

// NewRouter builds the HTTP API around runner.
func NewRouter(buildInfo BuildInfo, runner *Runner) (http.Handler, error) {
	indexTemplate, err := GetIndexTemplate()
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(LoggerMiddleware(&wlog))
	r.Use(middleware.StripSlashes)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		data := indexData{
			Patterns: runner.Available(),
			Status:   runner.Status(),
			Build:    buildInfo,
		}
		if err := indexTemplate.Execute(w, data); err != nil {
			wlog.Err(err).Msg("Failed to render index")
		}
	})

	r.Get("/ws", createWebsocketHandler(runner))
	r.Handle("/metrics", metricsHandler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
			RespondJSON(w, buildInfo)
		})

		r.Get("/patterns", func(w http.ResponseWriter, r *http.Request) {
			RespondJSON(w, runner.Available())
		})

		r.Post("/run/{pattern}", func(w http.ResponseWriter, r *http.Request) {
			pattern, err := modes.ParsePattern(chi.URLParam(r, "pattern"))
			if err != nil {
				RespondNotFoundError(w, err.Error())
				return
			}
			delay, err := queryInt(r, "delay")
			if err != nil {
				RespondBadRequest(w, err.Error())
				return
			}
			repeat, err := queryInt(r, "repeat")
			if err != nil {
				RespondBadRequest(w, err.Error())
				return
			}

			err = runner.Start(RunRequest{Pattern: pattern, DelayMs: delay, Repeat: repeat})
			if errors.Is(err, ErrRepeatOutOfRange) {
				RespondBadRequest(w, err.Error())
				return
			}
			if errors.Is(err, ErrPatternUnavailable) {
				RespondConflict(w, err.Error())
				return
			}
			if err != nil {
				RespondInternalServiceError(w, err)
				return
			}

			RespondJSON(w, runner.Status())
		})

		r.Post("/stop", func(w http.ResponseWriter, r *http.Request) {
			runner.Stop()
			w.WriteHeader(http.StatusNoContent)
		})

		r.Post("/next", func(w http.ResponseWriter, r *http.Request) {
			if _, err := runner.Next(); err != nil {
				RespondInternalServiceError(w, err)
				return
			}
			RespondJSON(w, runner.Status())
		})

		r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Cache-Control", "no-cache, no-store")
			RespondJSON(w, runner.Status())
		})

		r.Get("/history", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Cache-Control", "no-cache, no-store")
			RespondJSON(w, runner.History())
		})
	})

	return r, nil
}

// StartServer serves the API until ctx is cancelled.
func StartServer(ctx context.Context, config *Config, buildInfo BuildInfo, runner *Runner) error {
	handler, err := NewRouter(buildInfo, runner)
	if err != nil {
		return err
	}

	address := config.ListenAddress()
	server := &http.Server{
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			wlog.Err(err).Msg("Server shutdown failed")
		}
	}()

	wlog.Info().Str("listen", address).Msg("Launching server")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
