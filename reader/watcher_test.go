package reader

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/c360studio/registrygraph/canonical"
)

func TestWatcherDeliversSettledFiles(t *testing.T) {
	root := t.TempDir()
	w := NewWatcher(root, 50*time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var mu sync.Mutex
	got := make(map[string]string)
	done := make(chan struct{})

	go func() {
		_ = w.Run(ctx, func(raw *canonical.RawDocument) error {
			mu.Lock()
			got[filepath.Base(raw.FilePath)] = string(raw.Bytes)
			if len(got) == 2 {
				close(done)
			}
			mu.Unlock()
			return nil
		})
	}()

	// Give the watcher a moment to register the root.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.json"), []byte(`{"a":1}`), 0o644))

	// New subdirectories join the watch as they appear.
	sub := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "b.json"), []byte(`{"b":2}`), 0o644))

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatalf("watcher delivered %d of 2 files before timeout", len(got))
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, `{"a":1}`, got["a.json"])
	require.Equal(t, `{"b":2}`, got["b.json"])
}

func TestWatcherDebouncesRewrites(t *testing.T) {
	root := t.TempDir()
	w := NewWatcher(root, 150*time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var mu sync.Mutex
	var payloads []string

	go func() {
		_ = w.Run(ctx, func(raw *canonical.RawDocument) error {
			mu.Lock()
			payloads = append(payloads, string(raw.Bytes))
			mu.Unlock()
			return nil
		})
	}()
	time.Sleep(100 * time.Millisecond)

	// Simulate a slow writer: several writes inside the settle window
	// must produce one delivery with the final bytes.
	path := filepath.Join(root, "slow.json")
	for _, chunk := range []string{`{"part`, `{"partial"`, `{"partial": true}`} {
		require.NoError(t, os.WriteFile(path, []byte(chunk), 0o644))
		time.Sleep(30 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(payloads) >= 1
	}, 3*time.Second, 20*time.Millisecond, "settled file never delivered")

	time.Sleep(300 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, payloads, 1, "rewrites within the settle window must coalesce")
	require.Equal(t, `{"partial": true}`, payloads[0])
}
