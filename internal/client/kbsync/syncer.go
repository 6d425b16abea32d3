package kbsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/openmined/kbsync/internal/client/sync"
	"github.com/openmined/kbsync/internal/client/workspace"
	"github.com/openmined/kbsync/internal/kbstore"
	"github.com/openmined/kbsync/internal/syncsdk"
)

// certs expiring within this window are fetched again
const certRenewWindow = 24 * time.Hour

// Syncer moves records between the local indexes and the sync server. It
// implements the full, quick, message and cert collaborators of the scheduler.
type Syncer struct {
	sdk       *syncsdk.SDK
	endpoints sync.EndpointLookup
	now       func() time.Time
}

func NewSyncer(sdk *syncsdk.SDK, endpoints sync.EndpointLookup) *Syncer {
	return &Syncer{
		sdk:       sdk,
		endpoints: endpoints,
		now:       time.Now,
	}
}

// ChangesBubble is the bubble notification payload after records were pulled.
type ChangesBubble struct {
	KbGUID  string `json:"kb_guid"`
	Changes int    `json:"changes"`
}

// MessagesBubble is the bubble notification payload for new messages.
type MessagesBubble struct {
	Count  int    `json:"count"`
	Latest string `json:"latest"`
}

// SyncAll refreshes the group list and syncs the primary index followed by
// every group. A failing knowledge base does not stop the others; all errors
// are returned joined.
func (s *Syncer) SyncAll(ctx context.Context, id *sync.Identity, primary sync.PrimaryDatabase, background bool, events sync.EventSink) error {
	p, ok := primary.(*PrimaryDB)
	if !ok {
		return fmt.Errorf("unsupported primary database %T", primary)
	}

	groups, err := s.refreshGroups(ctx, id, p)
	if err != nil {
		// a stale group list still allows syncing what we know about
		slog.Warn("refresh groups", "error", err)
		groups, _ = p.Groups()
	}

	events.OnStatusText(fmt.Sprintf("Set database count: %d", len(groups)+1))

	var errs []error
	total := 0

	events.OnStatusText("Set current database index: 0")
	n, primaryErr := s.syncStore(ctx, p.Store, id, events)
	if primaryErr != nil {
		errs = append(errs, primaryErr)
	}
	total += n

	for i, group := range groups {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		events.OnStatusText(fmt.Sprintf("Set current database index: %d", i+1))
		n, err := s.syncGroup(ctx, p, id, group, events)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		total += n
	}

	if primaryErr == nil {
		if err := p.SaveLastSyncTime(s.now()); err != nil {
			slog.Warn("save last sync time", "error", err)
		}
	}

	if !background && total > 0 {
		events.OnBubbleNotification(&ChangesBubble{KbGUID: p.KbGUID(), Changes: total})
	}
	events.OnStatusText(fmt.Sprintf("Full sync done, %s changes", humanize.Comma(int64(total))))

	return errors.Join(errs...)
}

func (s *Syncer) refreshGroups(ctx context.Context, id *sync.Identity, p *PrimaryDB) ([]*kbstore.Group, error) {
	infos, err := s.sdk.User.Groups(ctx, id.Token)
	if err != nil {
		return nil, err
	}

	groups := make([]*kbstore.Group, 0, len(infos))
	for _, info := range infos {
		if !workspace.IsValidKbGUID(info.KbGUID) {
			slog.Warn("skip group with invalid guid", "kb", info.KbGUID, "name", info.Name)
			continue
		}
		groups = append(groups, &kbstore.Group{
			KbGUID:         info.KbGUID,
			Name:           info.Name,
			DatabaseServer: info.DatabaseServer,
			Role:           info.Role,
		})
	}
	if err := p.UpsertGroups(groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (s *Syncer) syncGroup(ctx context.Context, p *PrimaryDB, id *sync.Identity, group *kbstore.Group, events sync.EventSink) (int, error) {
	store, err := p.OpenGroup(group.KbGUID)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := p.CloseGroup(store); err != nil {
			slog.Warn("close group index", "kb", group.KbGUID, "error", err)
		}
	}()

	server := group.DatabaseServer
	if server == "" {
		server, err = s.endpoints.LookupEndpoint(ctx, id.Token, group.KbGUID)
		if err != nil {
			return 0, fmt.Errorf("lookup endpoint %s: %w", group.KbGUID, err)
		}
	}

	n, err := s.syncStore(ctx, store, id.WithKnowledgeBase(group.KbGUID, server), events)
	if err != nil {
		return n, err
	}
	if err := store.SaveLastSyncTime(s.now()); err != nil {
		slog.Warn("save last sync time", "kb", group.KbGUID, "error", err)
	}
	return n, nil
}

// SyncOne syncs a single index. id already points at the index's knowledge base.
func (s *Syncer) SyncOne(ctx context.Context, db sync.Database, id *sync.Identity, events sync.EventSink, isGroup bool, quick bool) error {
	store, err := storeOf(db)
	if err != nil {
		return err
	}
	if !isGroup {
		id = id.WithKnowledgeBase(store.KbGUID(), id.DatabaseServer)
	}
	_, err = s.syncStore(ctx, store, id, events)
	return err
}

// syncStore pushes local edits, then pulls remote changes until the store is
// up to date. It returns the number of records changed locally.
func (s *Syncer) syncStore(ctx context.Context, store *kbstore.Store, id *sync.Identity, events sync.EventSink) (int, error) {
	kbGUID := id.KbGUID
	if kbGUID == "" {
		return 0, errors.New("knowledge base guid is empty")
	}

	events.OnStatusText("OnBeginKb kb_guid: " + kbGUID)
	defer events.OnStatusText("OnEndKb kb_guid: " + kbGUID)

	if err := s.push(ctx, store, id, events); err != nil {
		return 0, err
	}

	since, err := store.Version()
	if err != nil {
		return 0, err
	}

	applied := 0
	for {
		resp, err := s.sdk.KB.Changes(ctx, id.DatabaseServer, id.Token, kbGUID, since)
		if err != nil {
			return applied, fmt.Errorf("pull %s: %w", kbGUID, err)
		}

		n, err := store.ApplyRecords(fromChanges(resp.Changes), resp.Version)
		if err != nil {
			return applied, err
		}
		applied += n

		if !resp.HasMore || resp.Version <= since {
			break
		}
		since = resp.Version
	}

	slog.Debug("kb synced", "kb", kbGUID, "applied", applied)
	return applied, nil
}

func (s *Syncer) push(ctx context.Context, store *kbstore.Store, id *sync.Identity, events sync.EventSink) error {
	dirty, err := store.DirtyRecords()
	if err != nil {
		return err
	}
	if len(dirty) == 0 {
		return nil
	}

	for _, r := range dirty {
		events.OnStatusText(fmt.Sprintf("Upload document: %s start", r.ID))
	}

	resp, err := s.sdk.KB.Push(ctx, id.DatabaseServer, id.Token, id.KbGUID, toChanges(dirty))
	if err != nil {
		return fmt.Errorf("push %s: %w", id.KbGUID, err)
	}
	if err := store.MarkClean(dirty, resp.Versions); err != nil {
		return err
	}

	for _, r := range dirty {
		if _, ok := resp.Versions[r.ID]; ok {
			events.OnStatusText(fmt.Sprintf("Upload document: %s finished", r.ID))
		}
	}
	return nil
}

// DownloadMessages fetches messages newer than the newest stored one.
func (s *Syncer) DownloadMessages(ctx context.Context, id *sync.Identity, primary sync.PrimaryDatabase, events sync.EventSink) error {
	p, ok := primary.(*PrimaryDB)
	if !ok {
		return fmt.Errorf("unsupported primary database %T", primary)
	}

	since, err := p.MessageVersion()
	if err != nil {
		return err
	}

	infos, err := s.sdk.Messages.List(ctx, id.Token, since)
	if err != nil {
		return err
	}

	msgs := make([]*kbstore.Message, 0, len(infos))
	for _, m := range infos {
		msgs = append(msgs, &kbstore.Message{
			ID:        m.ID,
			KbGUID:    m.KbGUID,
			Title:     m.Title,
			Body:      m.Body,
			Sender:    m.Sender,
			Version:   m.Version,
			CreatedAt: m.CreatedAt,
		})
	}

	added, err := p.AddMessages(msgs)
	if err != nil {
		return err
	}
	if len(added) == 0 {
		return nil
	}

	latest := added[0]
	for _, m := range added[1:] {
		if m.Version > latest.Version {
			latest = m
		}
	}
	events.OnBubbleNotification(&MessagesBubble{Count: len(added), Latest: latest.Title})
	events.OnStatusText(fmt.Sprintf("%s new messages, latest %s", humanize.Comma(int64(len(added))), humanize.Time(latest.CreatedAt)))
	return nil
}

// RefreshUserCert downloads the user cert unless a stored one is still valid
// for a while.
func (s *Syncer) RefreshUserCert(ctx context.Context, id *sync.Identity, primary sync.PrimaryDatabase) error {
	p, ok := primary.(*PrimaryDB)
	if !ok {
		return fmt.Errorf("unsupported primary database %T", primary)
	}

	current, err := p.UserCert()
	if err != nil {
		return err
	}
	if current != nil && current.ExpiresAt.After(s.now().Add(certRenewWindow)) {
		return nil
	}

	cert, err := s.sdk.User.Cert(ctx, id.Token)
	if err != nil {
		return err
	}
	return p.SetUserCert(&kbstore.UserCert{
		UserID:              cert.UserID,
		PublicKey:           cert.PublicKey,
		EncryptedPrivateKey: cert.EncryptedPrivateKey,
		ExpiresAt:           cert.ExpiresAt,
	})
}

func toChanges(records []*kbstore.Record) []syncsdk.RecordChange {
	changes := make([]syncsdk.RecordChange, 0, len(records))
	for _, r := range records {
		changes = append(changes, syncsdk.RecordChange{
			ID:         r.ID,
			Title:      r.Title,
			Body:       r.Body,
			Version:    r.Version,
			Deleted:    r.Deleted,
			ModifiedAt: r.ModifiedAt,
		})
	}
	return changes
}

func fromChanges(changes []syncsdk.RecordChange) []*kbstore.Record {
	records := make([]*kbstore.Record, 0, len(changes))
	for _, c := range changes {
		records = append(records, &kbstore.Record{
			ID:         c.ID,
			Title:      c.Title,
			Body:       c.Body,
			Version:    c.Version,
			Deleted:    c.Deleted,
			ModifiedAt: c.ModifiedAt,
		})
	}
	return records
}

var (
	_ sync.FullSyncer        = (*Syncer)(nil)
	_ sync.QuickSyncer       = (*Syncer)(nil)
	_ sync.MessageDownloader = (*Syncer)(nil)
	_ sync.CertRefresher     = (*Syncer)(nil)
)
