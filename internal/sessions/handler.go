package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/2beens/repstats/internal/telemetry/metrics"
	"github.com/2beens/repstats/internal/telemetry/tracing"
	"github.com/2beens/repstats/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

//go:generate mockgen -source=$GOFILE -destination=sessions_mocks_test.go -package=sessions_test

type sessionsRepo interface {
	AddSession(ctx context.Context, session Session) (*Session, error)
	Cleanup(ctx context.Context) (CleanupResult, error)
	Get(ctx context.Context, id int) (*Session, error)
	Delete(ctx context.Context, id int) error
	List(ctx context.Context, page, size int) (_ []Session, total int, err error)
	ListBetween(ctx context.Context, from, to *time.Time) ([]Session, error)
	MaxSetReps(ctx context.Context) (int, error)
	MaxSessionReps(ctx context.Context) (int, error)
}

type AddEntryRequest struct {
	TotalReps int        `json:"total_reps"`
	Sets      []SetEntry `json:"sets"`
}

type SetEntry struct {
	Reps            int `json:"reps"`
	DurationSeconds int `json:"duration_seconds"`
	RestTimeAfter   int `json:"rest_time_after"`
}

type AddEntryResponse struct {
	Success bool `json:"success"`
	ID      int  `json:"id"`
}

type CleanupResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type DeleteSessionResponse struct {
	DeletedID int `json:"deleted_id"`
}

type ListResponse struct {
	Sessions []Session `json:"sessions"`
	Total    int       `json:"total"`
}

type Handler struct {
	repo    sessionsRepo
	metrics *metrics.Manager
}

func NewHandler(repo sessionsRepo, metrics *metrics.Manager) *Handler {
	return &Handler{
		repo:    repo,
		metrics: metrics,
	}
}

// HandleAddEntry logs a new workout session with its sets. Everything
// is written in one transaction, so a bad set entry fails the whole
// request and nothing is persisted.
func (handler *Handler) HandleAddEntry(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.add")
	defer span.End()

	var req AddEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("add entry, unmarshal json params: %s", err)
		writeError(w, err)
		return
	}

	session := Session{
		LogTime:   time.Now().UTC(),
		TotalReps: req.TotalReps,
		Sets:      make([]Set, 0, len(req.Sets)),
	}
	for _, setEntry := range req.Sets {
		session.Sets = append(session.Sets, Set{
			Reps:            setEntry.Reps,
			DurationSeconds: setEntry.DurationSeconds,
			RestTimeAfter:   setEntry.RestTimeAfter,
		})
	}

	addedSession, err := handler.repo.AddSession(ctx, session)
	if err != nil {
		log.Errorf("failed to add new session [total reps: %d]: %s", req.TotalReps, err)
		writeError(w, err)
		return
	}

	handler.metrics.CounterSessionsAdded.Inc()
	handler.metrics.CounterSetsAdded.Add(float64(len(addedSession.Sets)))

	respJson, err := json.Marshal(AddEntryResponse{
		Success: true,
		ID:      addedSession.ID,
	})
	if err != nil {
		log.Errorf("failed to marshal add entry response: %s", err)
		writeError(w, err)
		return
	}

	log.Debugf("new session added: %d [total reps: %d, sets: %d]",
		addedSession.ID, addedSession.TotalReps, len(addedSession.Sets))
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, http.StatusCreated)
}

// HandleCleanup is the one-shot database purge: drops zero-rep sets
// and everything older than the retention cutoff.
func (handler *Handler) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.cleanup")
	defer span.End()

	result, err := handler.repo.Cleanup(ctx)
	if err != nil {
		log.Errorf("failed to clean db: %s", err)
		writeError(w, err)
		return
	}

	handler.metrics.CounterCleanups.Inc()

	respJson, err := json.Marshal(CleanupResponse{
		Success: true,
		Message: "Database cleaned successfully",
	})
	if err != nil {
		log.Errorf("failed to marshal cleanup response: %s", err)
		writeError(w, err)
		return
	}

	log.Debugf("db cleaned: %d zero-rep sets, %d expired sets, %d expired sessions",
		result.ZeroRepSets, result.ExpiredSets, result.ExpiredSessions)
	pkg.WriteJSONResponseOK(w, string(respJson))
}

func (handler *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.get")
	defer span.End()

	vars := mux.Vars(r)
	idStr := vars["id"]
	if idStr == "" {
		http.Error(w, "error, id empty", http.StatusBadRequest)
		return
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		http.Error(w, "error, id NaN", http.StatusBadRequest)
		return
	}

	session, err := handler.repo.Get(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		log.Debugf("session %d not found", id)
		http.Error(w, "session not found", http.StatusNotFound)
		return
	} else if err != nil {
		log.Errorf("failed to get session %d: %s", id, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	sessionJson, err := json.Marshal(session)
	if err != nil {
		log.Errorf("failed to marshal session: %s", err)
		http.Error(w, "failed to marshal session", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, sessionJson, http.StatusOK)
}

func (handler *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.delete")
	defer span.End()

	vars := mux.Vars(r)
	idStr := vars["id"]
	if idStr == "" {
		http.Error(w, "error, id empty", http.StatusBadRequest)
		return
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		http.Error(w, "error, id NaN", http.StatusBadRequest)
		return
	}

	if err := handler.repo.Delete(ctx, id); errors.Is(err, ErrSessionNotFound) {
		log.Debugf("session %d not found", id)
		http.Error(w, "session not found", http.StatusNotFound)
		return
	} else if err != nil {
		log.Errorf("failed to delete session %d: %s", id, err)
		http.Error(w, "session not deleted", http.StatusInternalServerError)
		return
	}

	deleteRespJson, err := json.Marshal(DeleteSessionResponse{
		DeletedID: id,
	})
	if err != nil {
		log.Errorf("failed to marshal delete response: %s", err)
		http.Error(w, "failed to marshal delete response", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSONResponseOK(w, string(deleteRespJson))
}

func (handler *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.list")
	defer span.End()

	vars := mux.Vars(r)
	page, err := strconv.Atoi(vars["page"])
	if err != nil {
		log.Tracef("handle list sessions, <page> param: %s", err)
		http.Error(w, "parse form error, parameter <page>", http.StatusBadRequest)
		return
	}
	size, err := strconv.Atoi(vars["size"])
	if err != nil {
		log.Tracef("handle list sessions, <size> param: %s", err)
		http.Error(w, "parse form error, parameter <size>", http.StatusBadRequest)
		return
	}
	if page < 1 {
		http.Error(w, "invalid page (has to be non-zero value)", http.StatusBadRequest)
		return
	}
	if size < 1 {
		http.Error(w, "invalid size (has to be non-zero value)", http.StatusBadRequest)
		return
	}

	sessions, total, err := handler.repo.List(ctx, page, size)
	if err != nil {
		log.Errorf("list sessions error: %s", err)
		http.Error(w, "failed to get sessions", http.StatusInternalServerError)
		return
	}

	listRespJson, err := json.Marshal(ListResponse{
		Sessions: sessions,
		Total:    total,
	})
	if err != nil {
		log.Errorf("marshal sessions error: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, listRespJson, http.StatusOK)
}

// writeError reports the failure as a 500 with the raw error in the
// body.
func writeError(w http.ResponseWriter, err error) {
	pkg.WriteResponse(
		w,
		pkg.ContentType.JSON,
		fmt.Sprintf(`{"error": %q}`, err.Error()),
		http.StatusInternalServerError,
	)
}
