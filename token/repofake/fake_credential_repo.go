package repofake

import (
	"errors"
	"sync"

	"github.com/jrsteele09/go-dropship-gateway/token"
)

var _ token.CredentialRepo = (*FakeCredentialRepo)(nil)

var ErrFakeFailure = errors.New("fake repo failure")

type FakeCredentialRepo struct {
	lock    sync.RWMutex
	record  *token.Record
	saves   int
	deletes int
	fail    bool
}

func NewFakeCredentialRepo() *FakeCredentialRepo {
	return &FakeCredentialRepo{}
}

// NewFakeCredentialRepoWith returns a repo pre-loaded with record.
func NewFakeCredentialRepoWith(record *token.Record) *FakeCredentialRepo {
	r := &FakeCredentialRepo{}
	if record != nil {
		cp := *record
		r.record = &cp
	}
	return r
}

// SetFailing makes every subsequent call return ErrFakeFailure.
func (r *FakeCredentialRepo) SetFailing(fail bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.fail = fail
}

func (r *FakeCredentialRepo) Load() (*token.Record, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	if r.fail {
		return nil, ErrFakeFailure
	}
	if r.record == nil {
		return nil, nil
	}
	cp := *r.record
	return &cp, nil
}

func (r *FakeCredentialRepo) Save(record *token.Record) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.fail {
		return ErrFakeFailure
	}
	cp := *record
	r.record = &cp
	r.saves++
	return nil
}

func (r *FakeCredentialRepo) Delete() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.fail {
		return ErrFakeFailure
	}
	r.record = nil
	r.deletes++
	return nil
}

// Saved returns the last saved record, or nil.
func (r *FakeCredentialRepo) Saved() *token.Record {
	r.lock.RLock()
	defer r.lock.RUnlock()
	if r.record == nil {
		return nil
	}
	cp := *r.record
	return &cp
}

func (r *FakeCredentialRepo) Saves() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.saves
}

func (r *FakeCredentialRepo) Deletes() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.deletes
}
