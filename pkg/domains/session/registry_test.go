package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wabot/pkg/config"
	"github.com/wabot/pkg/notify"
)

func newTestRegistry(t *testing.T) (*Registry, *fakeFactory, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.WhatsApp{
		AuthDir:          dir,
		ReconnectBase:    time.Hour,
		ReconnectMax:     2 * time.Hour,
		ReconnectCap:     6,
		ConflictRetry:    time.Hour,
		RecoveryCooldown: time.Hour,
	}
	ff := &fakeFactory{}
	reg := NewRegistry(cfg, ff.factory(), notify.NewBus(), nil, zerolog.Nop())
	t.Cleanup(func() { reg.Shutdown(context.Background()) })
	return reg, ff, dir
}

func TestCreateAndGet(t *testing.T) {
	reg, _, dir := newTestRegistry(t)

	sess, err := reg.Create(7)
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, uint(7), sess.OwnerID)
	assert.Equal(t, StatusInitializing, sess.Status)
	assert.Equal(t, filepath.Join(dir, sess.ID+".db"), sess.AuthPath)

	got, ok := reg.Get(sess.ID)
	require.True(t, ok)
	assert.Equal(t, sess.ID, got.ID)

	_, ok = reg.Get("nope")
	assert.False(t, ok)
}

func TestListByOwnerIsScoped(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	_, err := reg.Create(1)
	require.NoError(t, err)
	_, err = reg.Create(1)
	require.NoError(t, err)
	_, err = reg.Create(2)
	require.NoError(t, err)

	assert.Len(t, reg.ListByOwner(1), 2)
	assert.Len(t, reg.ListByOwner(2), 1)
	assert.Empty(t, reg.ListByOwner(3))
}

func TestFirstReadyPrefersConnectedSession(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	a, err := reg.Create(1)
	require.NoError(t, err)
	b, err := reg.Create(1)
	require.NoError(t, err)

	// none connected: any session serves as fallback
	sup := reg.FirstReady(1)
	require.NotNil(t, sup)

	supB, ok := reg.supervisor(b.ID)
	require.True(t, ok)
	supB.HandleOpen("905001")

	sup = reg.FirstReady(1)
	require.NotNil(t, sup)
	assert.Equal(t, b.ID, sup.Snapshot().ID)
	assert.NotEqual(t, a.ID, sup.Snapshot().ID)

	assert.Nil(t, reg.FirstReady(99))
}

func TestDestroyRemovesSessionAndCredentials(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	sess, err := reg.Create(1)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(sess.AuthPath, []byte("creds"), 0o600))

	require.NoError(t, reg.Destroy(context.Background(), sess.ID))
	_, ok := reg.Get(sess.ID)
	assert.False(t, ok)
	assert.Empty(t, reg.ListByOwner(1))
	assert.NoFileExists(t, sess.AuthPath)

	// destroying again reports not found, nothing else
	assert.ErrorIs(t, reg.Destroy(context.Background(), sess.ID), ErrSessionNotFound)
}

func TestRestoreScansAuthDir(t *testing.T) {
	reg, ff, dir := newTestRegistry(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "aaa.db"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bbb.db"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	require.NoError(t, reg.Restore(context.Background()))

	_, okA := reg.Get("aaa")
	_, okB := reg.Get("bbb")
	assert.True(t, okA)
	assert.True(t, okB)
	_, okTxt := reg.Get("notes")
	assert.False(t, okTxt)

	// restored sessions auto-initialize in the background
	require.Eventually(t, func() bool { return ff.buildCount() == 2 }, 2*time.Second, 5*time.Millisecond)

	// a second scan must not duplicate live sessions
	require.NoError(t, reg.Restore(context.Background()))
	assert.Len(t, reg.ListByOwner(0), 2)
}

func TestRestoreMissingDirIsNoop(t *testing.T) {
	cfg := config.WhatsApp{AuthDir: filepath.Join(t.TempDir(), "missing")}
	reg := NewRegistry(cfg, (&fakeFactory{}).factory(), notify.NewBus(), nil, zerolog.Nop())
	assert.NoError(t, reg.Restore(context.Background()))
}
