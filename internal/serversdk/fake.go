package serversdk

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/savebox/savebox/internal/utils"
)

// FakeServer is an in-memory Server for tests. It stores containers as raw
// bytes and hashes them the same way the real backend does, so status
// resolution against it behaves exactly like production.
type FakeServer struct {
	mu         sync.Mutex
	online     bool
	err        error
	containers map[string][]byte
	uploads    int
	downloads  int
}

var _ Server = (*FakeServer)(nil)

// NewFakeServer returns an online fake holding no saves.
func NewFakeServer() *FakeServer {
	return &FakeServer{
		online:     true,
		containers: make(map[string][]byte),
	}
}

// SetOnline flips what OnlineStatus reports.
func (f *FakeServer) SetOnline(online bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online = online
}

// FailWith makes every data call return err until cleared with nil.
func (f *FakeServer) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Seed stores a container without going through UploadSaveData.
func (f *FakeServer) Seed(name string, container []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.containers[name] = append([]byte(nil), container...)
}

// Container returns the stored bytes for a save, if any.
func (f *FakeServer) Container(name string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.containers[name]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Uploads counts completed UploadSaveData calls.
func (f *FakeServer) Uploads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads
}

// Downloads counts completed DownloadSaveData calls.
func (f *FakeServer) Downloads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloads
}

func (f *FakeServer) OnlineStatus(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online
}

func (f *FakeServer) SaveNames(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	names := make([]string, 0, len(f.containers))
	for name := range f.containers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (f *FakeServer) RemoteSaveHash(ctx context.Context, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", false, f.err
	}

	data, ok := f.containers[name]
	if !ok {
		return "", false, nil
	}
	return hashBytes(data), true, nil
}

func (f *FakeServer) LocalSaveHash(ctx context.Context, containerPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return utils.FileHash(containerPath)
}

func (f *FakeServer) UploadSaveData(ctx context.Context, name string, containerPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := os.ReadFile(containerPath)
	if err != nil {
		return fmt.Errorf("fake server: upload %q: %w", name, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.containers[name] = data
	f.uploads++
	return nil
}

func (f *FakeServer) DownloadSaveData(ctx context.Context, name string, destPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	data, ok := f.containers[name]
	failErr := f.err
	f.mu.Unlock()

	if failErr != nil {
		return failErr
	}
	if !ok {
		return fmt.Errorf("fake server: download %q: %w", name, NewAPIError(CodeSaveNotFound, "no such save"))
	}

	if err := utils.EnsureParent(destPath); err != nil {
		return err
	}
	if err := os.WriteFile(destPath, data, 0o644); err != nil {
		return err
	}

	f.mu.Lock()
	f.downloads++
	f.mu.Unlock()
	return nil
}

func hashBytes(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
