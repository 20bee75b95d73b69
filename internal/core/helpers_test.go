package core_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/policyingest/internal/core"
	_ "github.com/JonMunkholm/policyingest/internal/core/tables"
	"github.com/JonMunkholm/policyingest/internal/store/memory"
)

const policyHeader = "Policy Number,Policy Start Date,Policy End Date,Category,Company,Email,First Name,DOB,Phone,User Type"

// writeFile writes lines to dir/name and returns the path.
func writeFile(t *testing.T, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))
	return path
}

func count(t *testing.T, s core.Store, kind core.Kind) int64 {
	t.Helper()
	n, err := s.CountDocuments(context.Background(), kind)
	require.NoError(t, err)
	return n
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// racyStore simulates another job inserting the same key between this job's
// lookup and its insert.
type racyStore struct {
	*memory.Store
	kind  core.Kind
	attrs core.Attrs
	fired atomic.Bool
	winID core.ID
}

func (r *racyStore) FindOne(ctx context.Context, kind core.Kind, filter core.Filter) (core.ID, error) {
	if kind == r.kind && r.fired.CompareAndSwap(false, true) {
		id, err := r.Store.Create(ctx, kind, r.attrs)
		if err != nil {
			return core.ID{}, err
		}
		r.winID = id
		return core.ID{}, core.ErrNotFound
	}
	return r.Store.FindOne(ctx, kind, filter)
}

// failingStore fails every operation with err.
type failingStore struct {
	err error
}

func (f failingStore) FindOne(context.Context, core.Kind, core.Filter) (core.ID, error) {
	return core.ID{}, f.err
}

func (f failingStore) Create(context.Context, core.Kind, core.Attrs) (core.ID, error) {
	return core.ID{}, f.err
}

func (f failingStore) FindOneAndUpdate(context.Context, core.Kind, core.Filter, core.Attrs, core.UpdateOptions) (core.ID, error) {
	return core.ID{}, f.err
}

func (f failingStore) CountDocuments(context.Context, core.Kind) (int64, error) {
	return 0, f.err
}

func (f failingStore) Close(context.Context) error { return nil }

// panicStore panics on any write.
type panicStore struct {
	*memory.Store
}

func (panicStore) Create(context.Context, core.Kind, core.Attrs) (core.ID, error) {
	panic("boom")
}
