package kbsync

import (
	"log/slog"

	"github.com/openmined/kbsync/internal/kbstore"
)

// Records gives the control plane access to the records of the primary index
// and of every known group.
type Records struct {
	primary *PrimaryDB
}

func NewRecords(primary *PrimaryDB) *Records {
	return &Records{primary: primary}
}

func (r *Records) GetRecord(kbGUID, id string) (*kbstore.Record, error) {
	var rec *kbstore.Record
	err := r.withStore(kbGUID, false, func(store *kbstore.Store) error {
		var err error
		rec, err = store.GetRecord(id)
		return err
	})
	return rec, err
}

// PutRecord stores a local edit. Groups the user can only read are rejected.
func (r *Records) PutRecord(kbGUID string, rec *kbstore.Record) error {
	return r.withStore(kbGUID, true, func(store *kbstore.Store) error {
		return store.PutRecord(rec)
	})
}

func (r *Records) withStore(kbGUID string, write bool, fn func(*kbstore.Store) error) error {
	if kbGUID == "" || kbGUID == r.primary.KbGUID() {
		return fn(r.primary.Store)
	}

	group, err := r.primary.GroupData(kbGUID)
	if err != nil {
		return err
	}
	if write && group.Role == kbstore.RoleReader {
		return kbstore.ErrReadOnly
	}

	store, err := r.primary.OpenGroup(kbGUID)
	if err != nil {
		return err
	}
	defer func() {
		if err := r.primary.CloseGroup(store); err != nil {
			slog.Warn("close group index", "kb", kbGUID, "error", err)
		}
	}()

	return fn(store)
}
