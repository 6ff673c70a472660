package session

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu      sync.Mutex
	cred    Credential
	saveErr error
	cleared int
}

func (m *memoryStore) Load() (Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cred.Token == "" {
		return Credential{}, ErrNoCredential
	}
	return m.cred, nil
}

func (m *memoryStore) Save(cred Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.cred = cred
	return nil
}

func (m *memoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = Credential{}
	m.cleared++
	return nil
}

type transitions struct {
	mu  sync.Mutex
	got []bool
}

func (tr *transitions) record(authenticated bool) {
	tr.mu.Lock()
	tr.got = append(tr.got, authenticated)
	tr.mu.Unlock()
}

func (tr *transitions) list() []bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]bool(nil), tr.got...)
}

func TestSignInAndInvalidateNotifyOnce(t *testing.T) {
	t.Parallel()

	store := &memoryStore{}
	s := New(store, nil)
	var tr transitions
	s.Subscribe(tr.record)

	require.NoError(t, s.SignIn(Credential{Token: "abc", Username: "admin"}))
	require.NoError(t, s.SignIn(Credential{Token: "def", Username: "admin"}))
	token, ok := s.Token()
	require.True(t, ok)
	require.Equal(t, "def", token)
	require.Equal(t, "admin", s.Username())

	require.True(t, s.Invalidate())
	require.False(t, s.Invalidate())
	require.False(t, s.Authenticated())

	require.Equal(t, []bool{true, false}, tr.list())
	require.Equal(t, 1, store.cleared)
	_, err := store.Load()
	require.ErrorIs(t, err, ErrNoCredential)
}

func TestConcurrentInvalidateNotifiesOnce(t *testing.T) {
	t.Parallel()

	s := New(nil, nil)
	require.NoError(t, s.SignIn(Credential{Token: "abc"}))
	var tr transitions
	s.Subscribe(tr.record)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Invalidate()
		}()
	}
	wg.Wait()
	require.Equal(t, []bool{false}, tr.list())
}

func TestSignInRejectsEmptyToken(t *testing.T) {
	t.Parallel()

	s := New(nil, nil)
	require.Error(t, s.SignIn(Credential{}))
	require.False(t, s.Authenticated())
}

func TestSignInPersistFailureStillAuthenticates(t *testing.T) {
	t.Parallel()

	s := New(&memoryStore{saveErr: errors.New("disk full")}, nil)
	err := s.SignIn(Credential{Token: "abc"})
	require.Error(t, err)
	require.True(t, s.Authenticated())
}

func TestRestoreDoesNotNotify(t *testing.T) {
	t.Parallel()

	store := &memoryStore{cred: Credential{Token: "persisted", Username: "admin"}}
	s := New(store, nil)
	var tr transitions
	s.Subscribe(tr.record)

	require.True(t, s.Restore())
	require.True(t, s.Authenticated())
	require.Empty(t, tr.list())

	empty := New(&memoryStore{}, nil)
	require.False(t, empty.Restore())
}

func TestUnsubscribe(t *testing.T) {
	t.Parallel()

	s := New(nil, nil)
	var tr transitions
	cancel := s.Subscribe(tr.record)
	cancel()
	cancel()

	require.NoError(t, s.SignIn(Credential{Token: "abc"}))
	require.Empty(t, tr.list())
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "token.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	_, err = store.Load()
	require.ErrorIs(t, err, ErrNoCredential)

	require.NoError(t, store.Save(Credential{Token: "abc", Username: "admin"}))
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cred, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, Credential{Token: "abc", Username: "admin"}, cred)

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())
	_, err = store.Load()
	require.ErrorIs(t, err, ErrNoCredential)
}

func TestFileStoreRejectsBadInput(t *testing.T) {
	t.Parallel()

	_, err := NewFileStore("  ")
	require.Error(t, err)

	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
	_, err = NewFileStore(filepath.Join(blocker, "token.json"))
	require.Error(t, err)

	path := filepath.Join(dir, "token.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	store, err := NewFileStore(path)
	require.NoError(t, err)
	_, err = store.Load()
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNoCredential)
}
