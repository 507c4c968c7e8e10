// Package state provides SQLite-based persistence for flume.
package state

import (
	"io"

	"github.com/rkoval/flume/pkg/models"
)

// TaskStore handles task-related persistence operations.
type TaskStore interface {
	SaveTask(t *models.Task) error
	GetTask(id string) (*models.Task, error)
	ListTasks(limit int) ([]*models.Task, error)
	DeleteTask(id string) error
}

// Migrator handles database schema migrations.
// Separating this allows clients to depend only on migration functionality.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Store defines the interface for state persistence.
// This interface allows callers to work with any state backend without
// depending on the concrete SQLite implementation.
type Store interface {
	io.Closer
	Migrator
	TaskStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store     = (*DB)(nil)
	_ Migrator  = (*DB)(nil)
	_ TaskStore = (*DB)(nil)
)
