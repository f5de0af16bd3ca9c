package stores

import (
	"github.com/alejandrobarreracorrea/cloudscan/pkg/engine"
)

// The store doubles as the scheduler's event sink.
var (
	_ engine.Storage        = (*SQLiteStore)(nil)
	_ engine.EventPublisher = (*SQLiteStore)(nil)
)
