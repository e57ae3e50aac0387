package source

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/mapsync/internal/feature"
	geotypes "github.com/sells-group/mapsync/internal/geo"
)

// SQLiteStore reads and writes the features table of a SQLite database
// using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database at the given DSN and configures
// WAL mode.
func OpenSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS features (
	id        TEXT PRIMARY KEY,
	name      TEXT NOT NULL DEFAULT '',
	lng       REAL NOT NULL,
	lat       REAL NOT NULL,
	group_key TEXT NOT NULL DEFAULT '',
	kind      TEXT NOT NULL DEFAULT 'point'
);

CREATE INDEX IF NOT EXISTS idx_features_group_key ON features(group_key);
`

// Migrate creates the features table when missing.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ReplaceFeatures rewrites the features table in one transaction, so
// concurrent readers see either the old set or the new one.
func (s *SQLiteStore) ReplaceFeatures(ctx context.Context, feats []feature.Feature) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM features`); err != nil {
		return eris.Wrap(err, "sqlite: clear features")
	}
	for _, f := range feats {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO features (id, name, lng, lat, group_key, kind) VALUES (?, ?, ?, ?, ?, ?)`,
			f.ID, f.Name, f.Coord.Lng, f.Coord.Lat, f.GroupKey, f.Kind.String(),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert feature %s", f.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

// Features reads the full feature set in rowid order.
func (s *SQLiteStore) Features(ctx context.Context) ([]feature.Feature, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, lng, lat, group_key, kind FROM features ORDER BY rowid`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query features")
	}
	defer rows.Close()

	var feats []feature.Feature
	for rows.Next() {
		var f feature.Feature
		var lng, lat float64
		var kind string
		if err := rows.Scan(&f.ID, &f.Name, &lng, &lat, &f.GroupKey, &kind); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan feature")
		}
		f.Coord = geotypes.LngLat{Lng: lng, Lat: lat}
		f.Kind = feature.KindFromString(kind)
		feats = append(feats, f)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate features")
	}
	return feats, nil
}

// Load reads features from any supported source path. Driver selects
// the format: "geojson", "shapefile" or "sqlite".
func Load(ctx context.Context, driver, path string) ([]feature.Feature, error) {
	switch driver {
	case "geojson":
		return LoadGeoJSON(path)
	case "shapefile":
		return LoadShapefile(path)
	case "sqlite":
		st, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		defer func() { _ = st.Close() }()
		if err := st.Migrate(ctx); err != nil {
			return nil, err
		}
		return st.Features(ctx)
	default:
		return nil, eris.Errorf("source: unknown driver %q", driver)
	}
}
