// Package memory is an in-process implementation of core.Store. It enforces
// the same unique keys as the Postgres schema and backs tests and dry runs.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/policyingest/internal/core"
)

// ErrClosed is returned by every operation on a closed session.
var ErrClosed = errors.New("memory store: closed")

type document struct {
	id        core.ID
	attrs     core.Attrs
	createdAt time.Time
	updatedAt time.Time
}

type database struct {
	mu   sync.RWMutex
	docs map[core.Kind][]*document
}

// Store is one session over a shared in-memory database. Sessions share data
// but close independently, the way separate connections to one server do.
type Store struct {
	db     *database
	closed atomic.Bool
	now    func() time.Time
}

// New returns a session over a fresh, empty database.
func New() *Store {
	return &Store{
		db:  &database{docs: make(map[core.Kind][]*document)},
		now: time.Now,
	}
}

// Session opens another session over the same data.
func (s *Store) Session() *Store {
	return &Store{db: s.db, now: s.now}
}

// Opener returns a core.StoreOpener handing out new sessions. The target is ignored.
func (s *Store) Opener() core.StoreOpener {
	return func(context.Context, string) (core.Store, error) {
		return s.Session(), nil
	}
}

// Closed reports whether Close was called on this session.
func (s *Store) Closed() bool {
	return s.closed.Load()
}

// Close marks the session closed. The shared data is kept.
func (s *Store) Close(context.Context) error {
	s.closed.Store(true)
	return nil
}

func (s *Store) check(ctx context.Context, kind core.Kind) (core.EntityDefinition, error) {
	if s.closed.Load() {
		return core.EntityDefinition{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return core.EntityDefinition{}, err
	}
	return core.Lookup(kind)
}

// FindOne implements core.Store.
func (s *Store) FindOne(ctx context.Context, kind core.Kind, filter core.Filter) (core.ID, error) {
	def, err := s.check(ctx, kind)
	if err != nil {
		return core.ID{}, err
	}
	filter, err = def.Normalize(filter)
	if err != nil {
		return core.ID{}, err
	}

	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	if d := s.db.find(kind, filter); d != nil {
		return d.id, nil
	}
	return core.ID{}, fmt.Errorf("%s: %w", kind, core.ErrNotFound)
}

// Create implements core.Store.
func (s *Store) Create(ctx context.Context, kind core.Kind, attrs core.Attrs) (core.ID, error) {
	def, err := s.check(ctx, kind)
	if err != nil {
		return core.ID{}, err
	}
	attrs, err = def.Normalize(attrs)
	if err != nil {
		return core.ID{}, err
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	return s.db.insert(def, attrs, s.now())
}

// FindOneAndUpdate implements core.Store.
func (s *Store) FindOneAndUpdate(ctx context.Context, kind core.Kind, filter core.Filter, update core.Attrs, opts core.UpdateOptions) (core.ID, error) {
	def, err := s.check(ctx, kind)
	if err != nil {
		return core.ID{}, err
	}
	if filter, err = def.Normalize(filter); err != nil {
		return core.ID{}, err
	}
	if update, err = def.Normalize(update); err != nil {
		return core.ID{}, err
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	now := s.now()
	if d := s.db.find(kind, filter); d != nil {
		next := copyAttrs(d.attrs)
		for k, v := range update {
			next[k] = v
		}
		if other := s.db.findKey(def, next); other != nil && other != d {
			return core.ID{}, fmt.Errorf("%s: %w", kind, core.ErrConflict)
		}
		d.attrs = next
		d.updatedAt = now
		return d.id, nil
	}

	if !opts.Upsert {
		return core.ID{}, fmt.Errorf("%s: %w", kind, core.ErrNotFound)
	}
	merged := copyAttrs(filter)
	for k, v := range update {
		merged[k] = v
	}
	return s.db.insert(def, merged, now)
}

// CountDocuments implements core.Store.
func (s *Store) CountDocuments(ctx context.Context, kind core.Kind) (int64, error) {
	if _, err := s.check(ctx, kind); err != nil {
		return 0, err
	}
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	return int64(len(s.db.docs[kind])), nil
}

// Get returns a copy of the attributes stored for id. It is meant for tests
// and diagnostics and works on closed sessions.
func (s *Store) Get(kind core.Kind, id core.ID) (core.Attrs, bool) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	for _, d := range s.db.docs[kind] {
		if d.id == id {
			return copyAttrs(d.attrs), true
		}
	}
	return nil, false
}

// All returns copies of every entity of kind in insertion order. Like Get it
// ignores the closed flag.
func (s *Store) All(kind core.Kind) []core.Attrs {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	out := make([]core.Attrs, 0, len(s.db.docs[kind]))
	for _, d := range s.db.docs[kind] {
		a := copyAttrs(d.attrs)
		a["id"] = d.id
		out = append(out, a)
	}
	return out
}

// find returns the first document matching every filter entry. Callers hold the lock.
func (db *database) find(kind core.Kind, filter core.Filter) *document {
	for _, d := range db.docs[kind] {
		if matches(d.attrs, filter) {
			return d
		}
	}
	return nil
}

// findKey returns the document holding the unique key carried by attrs.
// Partial keys never collide, matching SQL NULL semantics.
func (db *database) findKey(def core.EntityDefinition, attrs core.Attrs) *document {
	if !def.HasKey(attrs) {
		return nil
	}
	key := make(core.Filter, len(def.UniqueKey))
	for _, k := range def.UniqueKey {
		key[k] = attrs[k]
	}
	return db.find(def.Info.Kind, key)
}

func (db *database) insert(def core.EntityDefinition, attrs core.Attrs, now time.Time) (core.ID, error) {
	if db.findKey(def, attrs) != nil {
		return core.ID{}, fmt.Errorf("%s: %w", def.Info.Kind, core.ErrConflict)
	}
	d := &document{
		id:        uuid.New(),
		attrs:     attrs,
		createdAt: now,
		updatedAt: now,
	}
	db.docs[def.Info.Kind] = append(db.docs[def.Info.Kind], d)
	return d.id, nil
}

func matches(attrs core.Attrs, filter core.Filter) bool {
	for k, want := range filter {
		got, ok := attrs[k]
		if !ok || !equal(got, want) {
			return false
		}
	}
	return true
}

func equal(a, b any) bool {
	switch av := a.(type) {
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	default:
		return a == b
	}
}

func copyAttrs(a core.Attrs) core.Attrs {
	out := make(core.Attrs, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// SearchUsers implements core.Querier.
func (s *Store) SearchUsers(ctx context.Context, fragment string) ([]core.UserSummary, error) {
	if _, err := s.check(ctx, core.KindUser); err != nil {
		return nil, err
	}
	needle := strings.ToLower(fragment)

	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var out []core.UserSummary
	for _, d := range s.db.docs[core.KindUser] {
		if strings.Contains(strings.ToLower(str(d.attrs, core.ColFirstName)), needle) {
			out = append(out, userSummary(d))
		}
	}
	return out, nil
}

// Policies implements core.Querier.
func (s *Store) Policies(ctx context.Context, userIDs []core.ID) ([]core.PolicyView, error) {
	if _, err := s.check(ctx, core.KindPolicy); err != nil {
		return nil, err
	}

	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var want map[core.ID]bool
	if userIDs != nil {
		want = make(map[core.ID]bool, len(userIDs))
		for _, id := range userIDs {
			want[id] = true
		}
	}

	var out []core.PolicyView
	for _, d := range s.db.docs[core.KindPolicy] {
		owner, _ := d.attrs[core.ColUserID].(core.ID)
		if want != nil && !want[owner] {
			continue
		}
		out = append(out, s.db.policyView(d))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].User.ID != out[j].User.ID {
			return out[i].User.ID.String() < out[j].User.ID.String()
		}
		return out[i].PolicyNumber < out[j].PolicyNumber
	})
	return out, nil
}

// SampleUser implements core.Querier.
func (s *Store) SampleUser(ctx context.Context) (core.UserSummary, error) {
	if _, err := s.check(ctx, core.KindUser); err != nil {
		return core.UserSummary{}, err
	}
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	users := s.db.docs[core.KindUser]
	if len(users) == 0 {
		return core.UserSummary{}, fmt.Errorf("user: %w", core.ErrNotFound)
	}
	return userSummary(users[0]), nil
}

// SamplePolicy implements core.Querier.
func (s *Store) SamplePolicy(ctx context.Context) (core.PolicyView, error) {
	if _, err := s.check(ctx, core.KindPolicy); err != nil {
		return core.PolicyView{}, err
	}
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	policies := s.db.docs[core.KindPolicy]
	if len(policies) == 0 {
		return core.PolicyView{}, fmt.Errorf("policy: %w", core.ErrNotFound)
	}
	return s.db.policyView(policies[0]), nil
}

func (db *database) byID(kind core.Kind, id core.ID) *document {
	for _, d := range db.docs[kind] {
		if d.id == id {
			return d
		}
	}
	return nil
}

func (db *database) policyView(d *document) core.PolicyView {
	v := core.PolicyView{
		ID:           d.id,
		PolicyNumber: str(d.attrs, core.ColPolicyNumber),
	}
	v.StartDate, _ = d.attrs[core.ColStartDate].(time.Time)
	v.EndDate, _ = d.attrs[core.ColEndDate].(time.Time)
	if id, ok := d.attrs[core.ColCategoryID].(core.ID); ok {
		if lob := db.byID(core.KindLOB, id); lob != nil {
			v.Category = str(lob.attrs, core.ColCategoryName)
		}
	}
	if id, ok := d.attrs[core.ColCompanyID].(core.ID); ok {
		if c := db.byID(core.KindCarrier, id); c != nil {
			v.Company = str(c.attrs, core.ColCompanyName)
		}
	}
	if id, ok := d.attrs[core.ColUserID].(core.ID); ok {
		if u := db.byID(core.KindUser, id); u != nil {
			v.User = userSummary(u)
		}
	}
	return v
}

func userSummary(d *document) core.UserSummary {
	return core.UserSummary{
		ID:          d.id,
		FirstName:   str(d.attrs, core.ColFirstName),
		Email:       str(d.attrs, core.ColEmail),
		PhoneNumber: str(d.attrs, core.ColPhone),
	}
}

func str(a core.Attrs, key string) string {
	s, _ := a[key].(string)
	return s
}

var (
	_ core.Store   = (*Store)(nil)
	_ core.Querier = (*Store)(nil)
)
