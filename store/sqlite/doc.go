// Package sqlite provides a SQLite-backed checkpoint store.
//
// It suits single-process deployments that still want conversation threads to
// survive a restart:
//
//	s, err := sqlite.NewSqliteCheckpointStore(sqlite.SqliteOptions{
//		Path: "./canvas.db",
//	})
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
// The schema is created on open. State, next nodes and metadata are stored as
// JSON text.
package sqlite
