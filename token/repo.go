package token

// CredentialRepo persists the single upstream credential record.
type CredentialRepo interface {
	// Load returns nil and no error when nothing has been saved.
	Load() (*Record, error)
	Save(record *Record) error
	Delete() error
}
