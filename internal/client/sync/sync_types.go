package sync

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrGroupNotFound           = errors.New("group not found")
	ErrSchedulerStarted        = errors.New("scheduler already started")
	ErrSchedulerStopped        = errors.New("scheduler stopped")
	ErrNoPrimaryDatabase       = errors.New("primary database is nil")
	ErrNoCredentialService     = errors.New("credential service is nil")
	ErrMissingSyncCollaborator = errors.New("sync collaborator is nil")
)

const (
	CodeOK           = ""
	CodeAuthFailed   = "E_AUTH_FAILED"
	CodeSyncFailed   = "E_SYNC_FAILED"
	CodeNoEndpoint   = "E_NO_ENDPOINT"
	CodeGroupMissing = "E_GROUP_NOT_FOUND"
)

// CodedError is implemented by errors that carry a machine readable code,
// the way the remote SDK reports api failures.
type CodedError interface {
	error
	ErrorCode() string
	ErrorMessage() string
}

// AuthError is returned by a CredentialService when no identity could be acquired.
type AuthError struct {
	Code    string
	Message string
	Err     error
}

func NewAuthError(code, message string, err error) *AuthError {
	if code == "" {
		code = CodeAuthFailed
	}
	return &AuthError{Code: code, Message: message, Err: err}
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error: %s - %s", e.Code, e.Message)
}

func (e *AuthError) Unwrap() error        { return e.Err }
func (e *AuthError) ErrorCode() string    { return e.Code }
func (e *AuthError) ErrorMessage() string { return e.Message }

var _ CodedError = (*AuthError)(nil)

// errorDetails extracts the code/message pair reported in finish events.
func errorDetails(err error) (string, string) {
	if err == nil {
		return CodeOK, ""
	}
	var coded CodedError
	if errors.As(err, &coded) {
		return coded.ErrorCode(), coded.ErrorMessage()
	}
	return CodeSyncFailed, err.Error()
}

// Identity is the credential bundle handed to every sync collaborator.
type Identity struct {
	Token          string
	UserID         string
	KbGUID         string
	DatabaseServer string
	ExpiresAt      time.Time
}

// WithKnowledgeBase returns a copy of the identity scoped to another knowledge base.
func (id *Identity) WithKnowledgeBase(kbGUID, databaseServer string) *Identity {
	cp := *id
	cp.KbGUID = kbGUID
	cp.DatabaseServer = databaseServer
	return &cp
}

// Database is a local knowledge base store.
type Database interface {
	KbGUID() string
	SaveLastSyncTime(t time.Time) error
}

// GroupDescriptor is what the group lookup returns for a group knowledge base.
type GroupDescriptor struct {
	KbGUID         string
	Name           string
	DatabaseServer string
}

// PrimaryDatabase is the caller's own database. It owns the group databases.
type PrimaryDatabase interface {
	Database
	SetKbGUID(kbGUID string) error
	OpenGroupDatabase(group *GroupDescriptor) (Database, error)
	CloseGroupDatabase(db Database) error
}

type CredentialService interface {
	AcquireIdentity(ctx context.Context) (*Identity, error)
	ClearCachedIdentity()
}

type FullSyncer interface {
	SyncAll(ctx context.Context, id *Identity, primary PrimaryDatabase, background bool, events EventSink) error
}

type QuickSyncer interface {
	SyncOne(ctx context.Context, db Database, id *Identity, events EventSink, isGroup bool, quick bool) error
}

type MessageDownloader interface {
	DownloadMessages(ctx context.Context, id *Identity, primary PrimaryDatabase, events EventSink) error
}

type GroupResolver interface {
	ResolveGroup(kbGUID string) (*GroupDescriptor, error)
}

type EndpointLookup interface {
	LookupEndpoint(ctx context.Context, token string, kbGUID string) (string, error)
}

// CertRefresher refreshes the user certificate. Failures are never fatal for a sync.
type CertRefresher interface {
	RefreshUserCert(ctx context.Context, id *Identity, primary PrimaryDatabase) error
}

// PromptKind classifies messages that the host application should present to the user.
type PromptKind int

const (
	PromptInfo PromptKind = iota
	PromptWarning
	PromptError
)

func (k PromptKind) String() string {
	switch k {
	case PromptInfo:
		return "info"
	case PromptWarning:
		return "warning"
	case PromptError:
		return "error"
	default:
		return "unknown"
	}
}

// EventSink receives lifecycle and progress notifications. Implementations must not block.
type EventSink interface {
	OnStart(fullSync bool)
	OnFinish(code string, message string, background bool)
	OnStatusText(text string)
	OnPromptMessage(kind PromptKind, title string, body string)
	OnBubbleNotification(payload any)
}

// Collaborators bundles everything the scheduler delegates to.
type Collaborators struct {
	Primary     PrimaryDatabase
	Credentials CredentialService
	Full        FullSyncer
	Quick       QuickSyncer
	Messages    MessageDownloader
	Groups      GroupResolver
	Endpoints   EndpointLookup
	Certs       CertRefresher // optional
	Events      EventSink     // optional, defaults to a discarding sink
}

func (c *Collaborators) validate() error {
	if c.Primary == nil {
		return ErrNoPrimaryDatabase
	}
	if c.Credentials == nil {
		return ErrNoCredentialService
	}
	if c.Full == nil || c.Quick == nil || c.Messages == nil || c.Groups == nil || c.Endpoints == nil {
		return ErrMissingSyncCollaborator
	}
	return nil
}
