// Package filerepo stores the upstream credential as a JSON file so a restart
// resumes with the same tokens and throttle state.
package filerepo

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jrsteele09/go-dropship-gateway/internal/utils"
	"github.com/jrsteele09/go-dropship-gateway/token"
)

// DefaultFileName is the credential file inside the data folder.
const DefaultFileName = "cj-tokens.json"

var _ token.CredentialRepo = (*FileCredentialRepo)(nil)

type FileCredentialRepo struct {
	path string
	lock sync.Mutex
}

func New(path string) *FileCredentialRepo {
	return &FileCredentialRepo{path: path}
}

// NewInFolder stores the credential as DefaultFileName inside folder.
func NewInFolder(folder string) *FileCredentialRepo {
	return New(filepath.Join(folder, DefaultFileName))
}

func (r *FileCredentialRepo) Load() (*token.Record, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	var rec token.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return &rec, nil
}

func (r *FileCredentialRepo) Save(record *token.Record) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	return utils.WriteJSONFile(r.path, record, 0o600)
}

func (r *FileCredentialRepo) Delete() error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if err := os.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}
