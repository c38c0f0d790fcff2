package persistence

// Persistence bundles the three store interfaces so the engine
// can depend on a single abstraction.
type Persistence struct {
	Graph    GraphStore
	Progress ProgressStore
	Audit    AuditStore
}
