package kbsync

import (
	"errors"
	"fmt"

	"github.com/openmined/kbsync/internal/client/sync"
	"github.com/openmined/kbsync/internal/kbstore"
)

// PrimaryDB exposes the primary index to the scheduler. It also resolves groups
// from the group list stored by the last full sync.
type PrimaryDB struct {
	*kbstore.Primary
}

func NewPrimaryDB(primary *kbstore.Primary) *PrimaryDB {
	return &PrimaryDB{Primary: primary}
}

func (p *PrimaryDB) OpenGroupDatabase(group *sync.GroupDescriptor) (sync.Database, error) {
	store, err := p.OpenGroup(group.KbGUID)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func (p *PrimaryDB) CloseGroupDatabase(db sync.Database) error {
	store, ok := db.(*kbstore.Store)
	if !ok {
		return fmt.Errorf("not a group index: %T", db)
	}
	return p.CloseGroup(store)
}

func (p *PrimaryDB) ResolveGroup(kbGUID string) (*sync.GroupDescriptor, error) {
	group, err := p.GroupData(kbGUID)
	if errors.Is(err, kbstore.ErrGroupNotFound) {
		return nil, sync.ErrGroupNotFound
	} else if err != nil {
		return nil, err
	}
	return &sync.GroupDescriptor{
		KbGUID:         group.KbGUID,
		Name:           group.Name,
		DatabaseServer: group.DatabaseServer,
	}, nil
}

// storeOf returns the index behind a scheduler database.
func storeOf(db sync.Database) (*kbstore.Store, error) {
	switch v := db.(type) {
	case *kbstore.Store:
		return v, nil
	case *PrimaryDB:
		return v.Store, nil
	default:
		return nil, fmt.Errorf("unsupported database type %T", db)
	}
}

var (
	_ sync.PrimaryDatabase = (*PrimaryDB)(nil)
	_ sync.GroupResolver   = (*PrimaryDB)(nil)
)
