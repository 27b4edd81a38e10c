package migration

// Migration transforms the on-disk state directory from FromVersion to
// ToVersion (Up) and back (Down). Implementations must be idempotent:
// running Up twice against already-migrated state is a no-op.
type Migration interface {
	FromVersion() Version
	ToVersion() Version
	Description() string
	ID() string
	Up(dataDir string) error
	Down(dataDir string) error
}
