package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/AdamBeresnev/bracket-battles/internal/bracket"
	"github.com/AdamBeresnev/bracket-battles/internal/broadcast"
	"github.com/AdamBeresnev/bracket-battles/internal/httputil"
	"github.com/AdamBeresnev/bracket-battles/internal/media"
	"github.com/AdamBeresnev/bracket-battles/internal/middleware"
	"github.com/AdamBeresnev/bracket-battles/internal/service"
	"github.com/AdamBeresnev/bracket-battles/internal/store"
	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
)

const maxUploadSize = 10 << 20

type application struct {
	logger         *slog.Logger
	sessionManager *scs.SessionManager

	competitions *service.CompetitionService
	matches      *service.MatchService
	votes        *service.VoteService
	entries      *service.EntryService
	schedules    *service.ScheduleService
	users        *service.UserService
	userStore    *store.UserStore
	adminToken   string

	stream *broadcast.Stream
}

func (app *application) routes(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   allowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// The live stream hijacks the connection, so it stays outside the buffered session writer
	r.Get("/competitions/{id}/stream", func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		if _, err := app.competitions.GetCompetition(r.Context(), id); err != nil {
			httputil.Error(w, "Failed to get competition", err)
			return
		}
		app.stream.Serve(w, r, id)
	})

	r.Group(func(r chi.Router) {
		r.Use(app.sessionManager.LoadAndSave)
		r.Use(middleware.LoadAuthenticatedUser(app.sessionManager, app.userStore))

		r.Post("/auth/guest", app.handleGuestLogin)
		r.Post("/auth/admin", app.handleAdminLogin)
		r.Post("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
			if err := app.sessionManager.Destroy(r.Context()); err != nil {
				httputil.InternalServerError(w, "Failed to destroy session", err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		r.Get("/competitions/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, ok := uuidParam(w, r, "id")
			if !ok {
				return
			}
			data, err := app.competitions.GetCompetitionData(r.Context(), id)
			if err != nil {
				httputil.Error(w, "Failed to get competition data", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, data)
		})

		r.Get("/competitions/{id}/schedules", func(w http.ResponseWriter, r *http.Request) {
			id, ok := uuidParam(w, r, "id")
			if !ok {
				return
			}
			schedules, err := app.schedules.GetRoundSchedules(r.Context(), id)
			if err != nil {
				httputil.Error(w, "Failed to get round schedules", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, schedules)
		})

		r.Get("/matches/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, ok := uuidParam(w, r, "id")
			if !ok {
				return
			}
			data, err := app.matches.GetMatch(r.Context(), id)
			if err != nil {
				httputil.Error(w, "Failed to get match data", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, data)
		})

		r.Get("/users/{id}/stats", func(w http.ResponseWriter, r *http.Request) {
			id, ok := uuidParam(w, r, "id")
			if !ok {
				return
			}
			stats, err := app.users.GetStats(r.Context(), id)
			if err != nil {
				httputil.Error(w, "Failed to get user stats", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, stats)
		})

		r.Get("/users/{id}/hosted", func(w http.ResponseWriter, r *http.Request) {
			id, ok := uuidParam(w, r, "id")
			if !ok {
				return
			}
			hosted, err := app.users.GetHostHistory(r.Context(), id)
			if err != nil {
				httputil.Error(w, "Failed to get host history", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, hosted)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)

			r.Get("/me", func(w http.ResponseWriter, r *http.Request) {
				user := middleware.GetAuthenticatedUser(r.Context())
				if user == nil {
					httputil.NotFound(w, "User not found", nil)
					return
				}
				httputil.WriteJSON(w, http.StatusOK, user)
			})

			r.Post("/competitions", app.handleCreateCompetition)

			r.Post("/competitions/{id}/entries", app.handleSubmitEntry)
			r.Get("/competitions/{id}/entries/me", func(w http.ResponseWriter, r *http.Request) {
				id, ok := uuidParam(w, r, "id")
				if !ok {
					return
				}
				entry, err := app.entries.GetUserEntry(r.Context(), id)
				if err != nil {
					httputil.Error(w, "Failed to get entry", err)
					return
				}
				httputil.WriteJSON(w, http.StatusOK, entry)
			})
			r.Put("/entries/{id}", app.handleUpdateEntry)

			r.Get("/competitions/{id}/votes/me", func(w http.ResponseWriter, r *http.Request) {
				id, ok := uuidParam(w, r, "id")
				if !ok {
					return
				}
				votes, err := app.votes.GetUserVotes(r.Context(), id)
				if err != nil {
					httputil.Error(w, "Failed to get votes", err)
					return
				}
				httputil.WriteJSON(w, http.StatusOK, votes)
			})
			r.Post("/matches/{id}/votes", app.handleCastVote)
			r.Post("/matches/{id}/finalize", func(w http.ResponseWriter, r *http.Request) {
				id, ok := uuidParam(w, r, "id")
				if !ok {
					return
				}
				match, err := app.matches.FinalizeMatch(r.Context(), id)
				if err != nil {
					httputil.Error(w, "Failed to finalize match", err)
					return
				}
				httputil.WriteJSON(w, http.StatusOK, match)
			})

			r.Put("/competitions/{id}/schedules/{round}", app.handleSetRoundSchedule)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin)

				r.Post("/competitions/{id}/open", app.handleTransition(app.competitions.OpenEntries, "Failed to open entries"))
				r.Post("/competitions/{id}/close", app.handleTransition(app.competitions.CloseEntriesAndSeed, "Failed to close entries"))
				r.Post("/competitions/{id}/complete", app.handleCompleteCompetition)
				r.Post("/hosts/random", func(w http.ResponseWriter, r *http.Request) {
					host, err := app.competitions.SelectRandomHost(r.Context())
					if err != nil {
						httputil.Error(w, "Failed to select host", err)
						return
					}
					httputil.WriteJSON(w, http.StatusOK, host)
				})
				r.Put("/users/{id}/verified", app.handleSetVerified)
			})
		})
	})

	return r
}

// handleGuestLogin gives each new client its own guest user. A client that is already signed in
// keeps its identity.
func (app *application) handleGuestLogin(w http.ResponseWriter, r *http.Request) {
	if user := middleware.GetAuthenticatedUser(r.Context()); user != nil {
		httputil.WriteJSON(w, http.StatusOK, user)
		return
	}

	user, err := app.users.CreateGuestUser(r.Context())
	if err != nil {
		httputil.InternalServerError(w, "Failed to create guest user", err)
		return
	}
	if !app.signIn(w, r, user.ID) {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

type adminLoginRequest struct {
	Token string `json:"token"`
}

func (app *application) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !adminTokenMatches(app.adminToken, req.Token) {
		httputil.Error(w, "Admin sign in rejected", service.ErrForbidden)
		return
	}

	user, err := app.users.EnsureAdminUser(r.Context())
	if err != nil {
		httputil.InternalServerError(w, "Failed to load admin user", err)
		return
	}
	if !app.signIn(w, r, user.ID) {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

func (app *application) signIn(w http.ResponseWriter, r *http.Request, userID uuid.UUID) bool {
	if err := app.sessionManager.RenewToken(r.Context()); err != nil {
		httputil.InternalServerError(w, "Failed to renew session", err)
		return false
	}
	app.sessionManager.Put(r.Context(), middleware.SessionUserKey, userID.String())
	return true
}

// adminTokenMatches never matches when no token is configured.
func adminTokenMatches(configured, given string) bool {
	if configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(given)) == 1
}

type createCompetitionRequest struct {
	Title         string     `json:"title"`
	Topic         string     `json:"topic"`
	HostID        *uuid.UUID `json:"hostId"`
	EntryDeadline time.Time  `json:"entryDeadline"`
}

func (app *application) handleCreateCompetition(w http.ResponseWriter, r *http.Request) {
	var req createCompetitionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	competition, err := app.competitions.CreateCompetition(r.Context(), service.CreateCompetitionInput{
		Title:         req.Title,
		Topic:         req.Topic,
		HostID:        req.HostID,
		EntryDeadline: req.EntryDeadline,
	})
	if err != nil {
		httputil.Error(w, "Failed to create competition", err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/competitions/%s", competition.ID))
	httputil.WriteJSON(w, http.StatusCreated, competition)
}

func (app *application) handleTransition(transition func(context.Context, uuid.UUID) (*bracket.Competition, error), msg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		competition, err := transition(r.Context(), id)
		if err != nil {
			httputil.Error(w, msg, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, competition)
	}
}

type completeCompetitionRequest struct {
	WinnerEntryID uuid.UUID `json:"winnerEntryId"`
}

func (app *application) handleCompleteCompetition(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req completeCompetitionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.WinnerEntryID == uuid.Nil {
		httputil.BadRequest(w, "winnerEntryId is required", nil)
		return
	}

	competition, err := app.competitions.CompleteCompetition(r.Context(), id, req.WinnerEntryID)
	if err != nil {
		httputil.Error(w, "Failed to complete competition", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, competition)
}

func (app *application) handleSubmitEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	input, cleanup, ok := parseEntryInput(w, r)
	if !ok {
		return
	}
	defer cleanup()

	entry, err := app.entries.SubmitEntry(r.Context(), id, input)
	if err != nil {
		httputil.Error(w, "Failed to submit entry", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, entry)
}

func (app *application) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	input, cleanup, ok := parseEntryInput(w, r)
	if !ok {
		return
	}
	defer cleanup()

	entry, err := app.entries.UpdateEntry(r.Context(), id, input)
	if err != nil {
		httputil.Error(w, "Failed to update entry", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entry)
}

type entryRequest struct {
	Selection string `json:"selection"`
	ImageLink string `json:"imageLink"`
}

// parseEntryInput accepts either a JSON body or a multipart form with an optional "image" file.
func parseEntryInput(w http.ResponseWriter, r *http.Request) (service.EntryInput, func(), bool) {
	noop := func() {}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req entryRequest
		if !decodeJSON(w, r, &req) {
			return service.EntryInput{}, noop, false
		}
		return service.EntryInput{Selection: req.Selection, ImageLink: req.ImageLink}, noop, true
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		httputil.BadRequest(w, "Invalid form data", err)
		return service.EntryInput{}, noop, false
	}
	cleanup := func() { r.MultipartForm.RemoveAll() }

	input := service.EntryInput{
		Selection: r.FormValue("selection"),
		ImageLink: r.FormValue("imageLink"),
	}

	file, header, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		cleanup()
		httputil.BadRequest(w, "Invalid image upload", err)
		return service.EntryInput{}, noop, false
	default:
		contentType := header.Header.Get("Content-Type")
		if !media.IsImageContentType(contentType) {
			file.Close()
			cleanup()
			httputil.BadRequest(w, fmt.Sprintf("Unsupported image type %q", contentType), nil)
			return service.EntryInput{}, noop, false
		}
		input.Image = &service.ImageUpload{ContentType: contentType, Body: file}
		cleanup = func() {
			file.Close()
			r.MultipartForm.RemoveAll()
		}
	}
	return input, cleanup, true
}

type castVoteRequest struct {
	EntryID uuid.UUID `json:"entryId"`
}

func (app *application) handleCastVote(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req castVoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.EntryID == uuid.Nil {
		httputil.BadRequest(w, "entryId is required", nil)
		return
	}

	match, err := app.votes.CastVote(r.Context(), id, req.EntryID)
	if err != nil {
		httputil.Error(w, "Failed to cast vote", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, match)
}

type roundScheduleRequest struct {
	RoundName string    `json:"roundName"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

func (app *application) handleSetRoundSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	round, err := strconv.Atoi(chi.URLParam(r, "round"))
	if err != nil {
		httputil.BadRequest(w, "Invalid round number", err)
		return
	}
	var req roundScheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	schedule, err := app.schedules.SetRoundSchedule(r.Context(), id, service.RoundScheduleInput{
		RoundNumber: round,
		RoundName:   req.RoundName,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
	})
	if err != nil {
		httputil.Error(w, "Failed to set round schedule", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, schedule)
}

type setVerifiedRequest struct {
	Verified bool `json:"verified"`
}

func (app *application) handleSetVerified(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req setVerifiedRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := app.users.SetVerified(r.Context(), id, req.Verified)
	if err != nil {
		httputil.Error(w, "Failed to update user", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		httputil.BadRequest(w, "Invalid "+name, err)
		return uuid.Nil, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		httputil.BadRequest(w, "Invalid request body", err)
		return false
	}
	return true
}

// checkOrigin allows websocket upgrades from the configured origins. With none configured the
// upgrader falls back to its same-origin check.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return slices.Contains(allowed, "*") || slices.ContainsFunc(allowed, func(o string) bool {
			return strings.EqualFold(strings.TrimSuffix(o, "/"), u.Scheme+"://"+u.Host)
		})
	}
}
