package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"checkin-backend/apperror"
)

// Session is the credential this device was issued, with the event and
// device id it is bound to.
type Session struct {
	Token     string
	EventID   string
	ScannerID string
	ServerURL string
}

// SessionContext carries everything a scan needs: the bound session,
// the coordinator client and the device's local state.
type SessionContext struct {
	Session   Session
	API       API
	Store     *Store
	Directory *Directory
	Queue     *Queue
	Location  *time.Location
	Log       *slog.Logger
}

// NewSessionContext wires a directory and queue over store.
func NewSessionContext(sess Session, api API, store *Store, loc *time.Location, log *slog.Logger) *SessionContext {
	if log == nil {
		log = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	log = log.With("event_id", sess.EventID, "scanner_id", sess.ScannerID)
	return &SessionContext{
		Session:   sess,
		API:       api,
		Store:     store,
		Directory: NewDirectory(store),
		Queue:     NewQueue(store, log),
		Location:  loc,
		Log:       log,
	}
}

// Bind asks the coordinator which event token belongs to and stores the
// binding. Binding needs the network; scanning afterwards does not.
func Bind(ctx context.Context, api API, store *Store, serverURL, token string) (Session, error) {
	info, err := api.Session(ctx, token)
	if err != nil {
		return Session{}, fmt.Errorf("bind scanner: %w", err)
	}
	sess := Session{
		Token:     token,
		EventID:   info.EventID,
		ScannerID: info.ScannerID,
		ServerURL: serverURL,
	}
	if err := store.SaveSession(ctx, sess); err != nil {
		if errors.Is(err, ErrUnsyncedScans) {
			return Session{}, apperror.Wrap(apperror.KindValidation, "unsynced_scans",
				"this device still holds offline scans for its current event; bring it online with the current session so they sync, then bind again", err)
		}
		return Session{}, err
	}
	return sess, nil
}
