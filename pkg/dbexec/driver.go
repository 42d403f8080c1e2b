package dbexec

import (
	"database/sql"
	"fmt"

	// PostgreSQL driver for user-supplied databases. The application's own
	// store goes through GORM; target databases are plain database/sql.
	_ "github.com/lib/pq"
)

// Kind enumerates the supported target database engines.
type Kind string

const (
	KindPostgres Kind = "postgres"
)

// Driver opens connections to one kind of target database. One
// implementation per Kind, selected through the Registry.
type Driver interface {
	Open(connString string) (*sql.DB, error)
}

// Registry maps a database kind to its driver. Extension point for new
// engines: register a driver, no executor changes needed.
type Registry struct {
	drivers map[Kind]Driver
}

func NewRegistry() *Registry {
	r := &Registry{drivers: make(map[Kind]Driver)}
	r.Register(KindPostgres, postgresDriver{})
	return r
}

func (r *Registry) Register(kind Kind, d Driver) {
	r.drivers[kind] = d
}

func (r *Registry) Driver(kind Kind) (Driver, error) {
	d, ok := r.drivers[kind]
	if !ok {
		return nil, fmt.Errorf("unsupported database kind: %s", kind)
	}
	return d, nil
}

type postgresDriver struct{}

func (postgresDriver) Open(connString string) (*sql.DB, error) {
	return sql.Open("postgres", connString)
}
