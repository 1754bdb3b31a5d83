// Package memstore is an in-process implementation of the repository
// interfaces. It backs the server when no Postgres DSN is configured and is
// used by service tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/authgate/internal/domain"
	"github.com/spec-kit/authgate/internal/repository"
)

type data struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	users       map[string]domain.User
	credentials map[string]domain.Credential
	nonces      map[nonceKey]domain.Nonce
	bridges     map[string]domain.Bridge
	nextFilter  int64
}

type nonceKey struct {
	owner   string
	purpose string
}

// undoLog records how to revert each write made inside a transaction. Only
// keys the transaction touched are reverted, so writes made outside it
// survive a rollback. Entries are appended and replayed under data.mu.
type undoLog struct {
	ops []func()
}

func (u *undoLog) add(op func()) {
	if u != nil {
		u.ops = append(u.ops, op)
	}
}

func (d *data) rollback(u *undoLog) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(u.ops) - 1; i >= 0; i-- {
		u.ops[i]()
	}
}

// The save* helpers must be called with d.mu held, before the write.

func (d *data) saveUser(u *undoLog, id string) {
	prev, ok := d.users[id]
	u.add(func() {
		if ok {
			d.users[id] = prev
		} else {
			delete(d.users, id)
		}
	})
}

func (d *data) saveCredential(u *undoLog, userID string) {
	prev, ok := d.credentials[userID]
	u.add(func() {
		if ok {
			d.credentials[userID] = prev
		} else {
			delete(d.credentials, userID)
		}
	})
}

func (d *data) saveNonce(u *undoLog, key nonceKey) {
	prev, ok := d.nonces[key]
	u.add(func() {
		if ok {
			d.nonces[key] = prev
		} else {
			delete(d.nonces, key)
		}
	})
}

func (d *data) saveBridge(u *undoLog, name string) {
	prev, ok := d.bridges[name]
	prev.Filters = append([]domain.Filter(nil), prev.Filters...)
	u.add(func() {
		if ok {
			d.bridges[name] = prev
		} else {
			delete(d.bridges, name)
		}
	})
}

// Store is an in-memory repository.UnitOfWork. Transactions are serialized
// with each other and roll back through an undo log.
type Store struct {
	d             *data
	tx            *undoLog
	transactional bool
}

// Option configures a Store.
type Option func(*Store)

// WithBulkMode makes the store report itself as non-transactional.
func WithBulkMode() Option {
	return func(s *Store) { s.transactional = false }
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		d: &data{
			users:       map[string]domain.User{},
			credentials: map[string]domain.Credential{},
			nonces:      map[nonceKey]domain.Nonce{},
			bridges:     map[string]domain.Bridge{},
		},
		transactional: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Users() repository.UserRepository             { return userRepo{s.d, s.tx} }
func (s *Store) Credentials() repository.CredentialRepository { return credentialRepo{s.d, s.tx} }
func (s *Store) Nonces() repository.NonceRepository           { return nonceRepo{s.d, s.tx} }
func (s *Store) Bridges() repository.BridgeRepository         { return bridgeRepo{s.d, s.tx} }

func (s *Store) Transactional() bool { return s.transactional }

// Atomic runs fn under the store's transaction lock. Nested calls join the
// outer transaction.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, uow repository.UnitOfWork) error) (err error) {
	if !s.transactional || s.tx != nil {
		return fn(ctx, s)
	}

	s.d.txMu.Lock()
	defer s.d.txMu.Unlock()

	tx := &undoLog{}
	defer func() {
		if p := recover(); p != nil {
			s.d.rollback(tx)
			panic(p)
		}
		if err != nil {
			s.d.rollback(tx)
		}
	}()

	return fn(ctx, &Store{d: s.d, tx: tx, transactional: true})
}

type userRepo struct {
	d  *data
	tx *undoLog
}

func (r userRepo) Create(_ context.Context, user *domain.User) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()

	for _, u := range r.d.users {
		if strings.EqualFold(u.Email, user.Email) {
			return repository.ErrConflict
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	r.d.saveUser(r.tx, user.ID)
	now := time.Now()
	user.CreatedAt, user.UpdatedAt = now, now
	r.d.users[user.ID] = *user
	return nil
}

func (r userRepo) Update(_ context.Context, user *domain.User) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()

	existing, ok := r.d.users[user.ID]
	if !ok {
		return repository.ErrNotFound
	}
	r.d.saveUser(r.tx, user.ID)
	existing.Email = user.Email
	existing.CredentialVersion = user.CredentialVersion
	existing.UpdatedAt = time.Now()
	r.d.users[user.ID] = existing
	user.UpdatedAt = existing.UpdatedAt
	return nil
}

func (r userRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()

	u, ok := r.d.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r userRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()

	for _, u := range r.d.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r userRepo) Delete(_ context.Context, id string) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()

	if _, ok := r.d.users[id]; !ok {
		return repository.ErrNotFound
	}
	r.d.saveUser(r.tx, id)
	delete(r.d.users, id)
	return nil
}

type credentialRepo struct {
	d  *data
	tx *undoLog
}

func (r credentialRepo) GetByUser(_ context.Context, userID string) (*domain.Credential, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()

	c, ok := r.d.credentials[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (r credentialRepo) Create(_ context.Context, cred *domain.Credential) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()

	if _, ok := r.d.users[cred.UserID]; !ok {
		return repository.ErrNotFound
	}
	if _, ok := r.d.credentials[cred.UserID]; ok {
		return repository.ErrConflict
	}
	r.d.saveCredential(r.tx, cred.UserID)
	cred.CreatedAt = time.Now()
	r.d.credentials[cred.UserID] = *cred
	return nil
}

func (r credentialRepo) DeleteByUser(_ context.Context, userID string) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	r.d.saveCredential(r.tx, userID)
	delete(r.d.credentials, userID)
	return nil
}

type nonceRepo struct {
	d  *data
	tx *undoLog
}

func (r nonceRepo) Upsert(_ context.Context, nonce *domain.Nonce) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()

	key := nonceKey{nonce.OwnerID, nonce.Purpose}
	r.d.saveNonce(r.tx, key)
	nonce.CreatedAt = time.Now()
	r.d.nonces[key] = *nonce
	return nil
}

func (r nonceRepo) Get(_ context.Context, ownerID, purpose string) (*domain.Nonce, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()

	n, ok := r.d.nonces[nonceKey{ownerID, purpose}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &n, nil
}

func (r nonceRepo) CountByOwner(_ context.Context, ownerID string) (int, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()

	count := 0
	for k := range r.d.nonces {
		if k.owner == ownerID {
			count++
		}
	}
	return count, nil
}

func (r nonceRepo) DeleteByOwner(_ context.Context, ownerID string) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()

	for k := range r.d.nonces {
		if k.owner == ownerID {
			r.d.saveNonce(r.tx, k)
			delete(r.d.nonces, k)
		}
	}
	return nil
}

type bridgeRepo struct {
	d  *data
	tx *undoLog
}

func (r bridgeRepo) ListBridges(_ context.Context) ([]domain.Bridge, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()

	out := make([]domain.Bridge, 0, len(r.d.bridges))
	for _, b := range r.d.bridges {
		b.Filters = append([]domain.Filter(nil), b.Filters...)
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r bridgeRepo) CreateBridge(_ context.Context, bridge *domain.Bridge) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()

	if _, ok := r.d.bridges[bridge.Name]; ok {
		return repository.ErrConflict
	}
	r.d.saveBridge(r.tx, bridge.Name)
	bridge.CreatedAt = time.Now()
	r.d.bridges[bridge.Name] = domain.Bridge{Name: bridge.Name, CreatedAt: bridge.CreatedAt}
	return nil
}

func (r bridgeRepo) DeleteBridge(_ context.Context, name string) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()

	if _, ok := r.d.bridges[name]; !ok {
		return repository.ErrNotFound
	}
	r.d.saveBridge(r.tx, name)
	delete(r.d.bridges, name)
	return nil
}

func (r bridgeRepo) AddFilter(_ context.Context, filter *domain.Filter) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()

	b, ok := r.d.bridges[filter.BridgeName]
	if !ok {
		return repository.ErrNotFound
	}
	r.d.saveBridge(r.tx, b.Name)
	r.d.nextFilter++
	filter.ID = r.d.nextFilter
	filter.Position = len(b.Filters)
	b.Filters = append(b.Filters, *filter)
	r.d.bridges[b.Name] = b
	return nil
}

var _ repository.UnitOfWork = (*Store)(nil)
