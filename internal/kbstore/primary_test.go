package kbstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrimary_Groups(t *testing.T) {
	p := newTestPrimary(t)

	require.NoError(t, p.UpsertGroups([]*Group{
		{KbGUID: "kbB", Name: "Beta", DatabaseServer: "https://b.example.com"},
		{KbGUID: "kbA", Name: "Alpha", Role: "admin"},
	}))

	groups, err := p.Groups()
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "Alpha", groups[0].Name)
	assert.False(t, groups[0].UpdatedAt.IsZero())

	g, err := p.GroupData("kbB")
	require.NoError(t, err)
	assert.Equal(t, "https://b.example.com", g.DatabaseServer)

	// the second list drops kbB
	require.NoError(t, p.UpsertGroups([]*Group{{KbGUID: "kbA", Name: "Alpha"}}))
	_, err = p.GroupData("kbB")
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestPrimary_OpenGroupIsRefCounted(t *testing.T) {
	p := newTestPrimary(t)

	g1, err := p.OpenGroup("kbA")
	require.NoError(t, err)
	g2, err := p.OpenGroup("kbA")
	require.NoError(t, err)
	assert.Same(t, g1, g2)
	assert.Equal(t, "kbA", g1.KbGUID())
	assert.Contains(t, g1.Path(), "groups")
	assert.Equal(t, 1, p.OpenGroupCount())

	require.NoError(t, p.CloseGroup(g1))
	assert.Equal(t, 1, p.OpenGroupCount())
	require.NoError(t, p.CloseGroup(g2))
	assert.Equal(t, 0, p.OpenGroupCount())
	assert.Error(t, p.CloseGroup(g2))

	// reopening keeps the group data
	g3, err := p.OpenGroup("kbA")
	require.NoError(t, err)
	require.NoError(t, g3.PutRecord(&Record{ID: "n1"}))
	require.NoError(t, p.CloseGroup(g3))

	g4, err := p.OpenGroup("kbA")
	require.NoError(t, err)
	defer p.CloseGroup(g4)
	_, err = g4.GetRecord("n1")
	assert.NoError(t, err)

	_, err = p.OpenGroup("")
	assert.Error(t, err)
}

func TestPrimary_UserCert(t *testing.T) {
	p := newTestPrimary(t)

	cert, err := p.UserCert()
	require.NoError(t, err)
	assert.Nil(t, cert)

	expires := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	require.NoError(t, p.SetUserCert(&UserCert{UserID: "alice", PublicKey: "pk1", EncryptedPrivateKey: "sk1", ExpiresAt: expires}))
	require.NoError(t, p.SetUserCert(&UserCert{UserID: "alice", PublicKey: "pk2", EncryptedPrivateKey: "sk2", ExpiresAt: expires}))

	cert, err = p.UserCert()
	require.NoError(t, err)
	require.NotNil(t, cert)
	assert.Equal(t, "pk2", cert.PublicKey)
	assert.True(t, expires.Equal(cert.ExpiresAt))
}

func TestPrimary_Messages(t *testing.T) {
	p := newTestPrimary(t)

	v, err := p.MessageVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	now := time.Now()
	added, err := p.AddMessages([]*Message{
		{ID: "m1", Title: "shared with you", Version: 5, CreatedAt: now},
		{ID: "m2", Title: "comment", Version: 9, CreatedAt: now},
	})
	require.NoError(t, err)
	assert.Len(t, added, 2)

	added, err = p.AddMessages([]*Message{
		{ID: "m2", Title: "comment", Version: 9, CreatedAt: now},
		{ID: "m3", Title: "mention", Version: 11, CreatedAt: now},
	})
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.Equal(t, "m3", added[0].ID)

	v, err = p.MessageVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(11), v)

	latest, err := p.Messages(2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "m3", latest[0].ID)

	all, err := p.Messages(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
