package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/go-chi/chi"
	"github.com/pkg/errors"
	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"

	apiErrs "github.com/drinktrack/drinktrack/pkg/api/errors"
	"github.com/drinktrack/drinktrack/pkg/catalog"
	"github.com/drinktrack/drinktrack/pkg/drinks"
	"github.com/drinktrack/drinktrack/pkg/sessions"
	"github.com/drinktrack/drinktrack/pkg/storage"
)

const maxUserIDLength = 128

//go:generate mockgen -destination=../mock/api.go -package=mock github.com/drinktrack/drinktrack/pkg/api SessionStore,Submitter

// SessionStore reads persisted sessions.
type SessionStore interface {
	Get(userID string) (drinks.Session, error)
	Delete(userID string) error
}

// Submitter accepts session forms for asynchronous persistence.
type Submitter interface {
	Submit(s drinks.Session) error
	IsPending(userID string) bool
	Release(userID string) error
}

type API struct {
	store     SessionStore
	submitter Submitter
	catalog   *catalog.Catalog
	logger    *zap.Logger
	now       func() time.Time
}

func NewAPI(store SessionStore, submitter Submitter, cat *catalog.Catalog, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		store:     store,
		submitter: submitter,
		catalog:   cat,
		logger:    logger,
		now:       time.Now,
	}
}

type sessionResponse struct {
	drinks.Session
	Units float64 `json:"units"`
	Total int     `json:"total"`
}

type pendingResponse struct {
	Pending bool `json:"pending"`
}

// trySendJSON encodes v before touching w, so an encoding failure can still be reported as an error reply.
func trySendJSON(w http.ResponseWriter, status int, v any) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		return errors.Wrapf(err, "failed to marshal %T to JSON", v)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.B); err != nil {
		return errors.Wrap(err, "failed to write JSON to ResponseWriter")
	}
	return nil
}

func userID(r *http.Request) (string, error) {
	id := chi.URLParam(r, "user")
	if id == "" || len(id) > maxUserIDLength || strings.TrimSpace(id) != id {
		return "", apiErrs.InvalidUserID
	}
	for _, c := range id {
		if !unicode.IsPrint(c) {
			return "", apiErrs.InvalidUserID
		}
	}
	return id, nil
}

func storageError(err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return apiErrs.SessionDoesNotExist
	case errors.Is(err, storage.ErrClosed):
		return apiErrs.ShuttingDown
	default:
		return err
	}
}

func (a *API) Catalog(w http.ResponseWriter, _ *http.Request) error {
	return trySendJSON(w, http.StatusOK, a.catalog.Drinks())
}

func (a *API) GetSession(w http.ResponseWriter, r *http.Request) error {
	user, err := userID(r)
	if err != nil {
		return err
	}
	s, err := a.store.Get(user)
	if err != nil {
		return storageError(err)
	}
	return trySendJSON(w, http.StatusOK, sessionResponse{Session: s, Units: s.Units(a.catalog), Total: s.Total()})
}

// PutSession accepts the whole session form of a user. The user in the path wins over the body.
// A form without id keeps the id and start time of the stored session, if there is one.
func (a *API) PutSession(w http.ResponseWriter, r *http.Request) error {
	user, err := userID(r)
	if err != nil {
		return err
	}
	var form drinks.Session
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, defaultMaxBodySize)).Decode(&form); err != nil {
		return apiErrs.NewWrongJSONError(err)
	}
	form.UserID = user
	if form.ID == "" {
		stored, err := a.store.Get(user)
		switch {
		case err == nil:
			form.ID = stored.ID
			if form.StartedAt.IsZero() {
				form.StartedAt = stored.StartedAt
			}
		case !errors.Is(err, storage.ErrNotFound):
			return storageError(err)
		}
	}
	now := a.now()
	form = form.WithDefaults(now)
	form.UpdatedAt = now.UTC()

	if err := a.submitter.Submit(form); err != nil {
		switch {
		case errors.Is(err, drinks.ErrInvalidSession):
			return apiErrs.NewInvalidSessionError(err)
		case errors.Is(err, sessions.ErrClosed):
			return apiErrs.ShuttingDown
		default:
			return errors.Wrap(err, "failed to submit session")
		}
	}
	return trySendJSON(w, http.StatusAccepted, pendingResponse{Pending: a.submitter.IsPending(user)})
}

func (a *API) Pending(w http.ResponseWriter, r *http.Request) error {
	user, err := userID(r)
	if err != nil {
		return err
	}
	return trySendJSON(w, http.StatusOK, pendingResponse{Pending: a.submitter.IsPending(user)})
}

// DeleteSession waits for the in-flight write of the user, drops the queued one and deletes the
// stored session.
func (a *API) DeleteSession(w http.ResponseWriter, r *http.Request) error {
	user, err := userID(r)
	if err != nil {
		return err
	}
	if err := a.submitter.Release(user); err != nil {
		a.logger.Warn("Last session write failed before release",
			append(requestFields(r), zap.String("user", user), zap.Error(err))...)
	}
	if err := a.store.Delete(user); err != nil {
		return storageError(err)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
