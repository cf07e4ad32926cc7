package cmd

import (
	"errors"

	"github.com/marcus/riverwalk/internal/backend"
	"github.com/marcus/riverwalk/internal/data"
	"github.com/marcus/riverwalk/internal/db"
	"github.com/marcus/riverwalk/internal/output"
	rwsync "github.com/marcus/riverwalk/internal/sync"
)

// errorCode maps an error to the code used in --json output.
func errorCode(err error) string {
	switch {
	case errors.Is(err, data.ErrNotFound), errors.Is(err, backend.ErrNotFound):
		return output.ErrCodeNotFound
	case errors.Is(err, data.ErrUnauthenticated), errors.Is(err, backend.ErrUnauthorized):
		return output.ErrCodeNotLoggedIn
	case errors.Is(err, rwsync.ErrOffline), errors.Is(err, backend.ErrUnreachable):
		return output.ErrCodeOffline
	case errors.Is(err, rwsync.ErrSyncInProgress):
		return output.ErrCodeSyncInProgress
	case errors.Is(err, backend.ErrRejected):
		return output.ErrCodeServerRejection
	case errors.Is(err, db.ErrStoreUnavailable):
		return output.ErrCodeDatabaseError
	default:
		return output.ErrCodeInvalidInput
	}
}

// fail prints err and returns it so RunE exits non-zero.
func fail(err error) error {
	switch {
	case errors.Is(err, data.ErrUnauthenticated):
		output.Error("%v (run 'rwalk auth login' or 'rwalk auth signup')", err)
	case errors.Is(err, rwsync.ErrOffline):
		output.Error("server unreachable; changes stay queued until the next sync")
	default:
		output.Error("%v", err)
	}
	return err
}

// failJSON reports err as a JSON error object when asJSON is set.
func failJSON(asJSON bool, err error) error {
	if asJSON {
		output.JSONError(errorCode(err), err.Error())
		return err
	}
	return fail(err)
}
