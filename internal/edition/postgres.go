package edition

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/IskanderBlue/CodeChronicle/pkg/postgres"
	"github.com/lib/pq"
)

// Schema creates the catalog tables.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS code_systems (
		code          TEXT PRIMARY KEY,
		display_name  TEXT NOT NULL DEFAULT '',
		is_national   BOOLEAN NOT NULL DEFAULT false,
		is_guide      BOOLEAN NOT NULL DEFAULT false,
		position      INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS code_editions (
		system          TEXT NOT NULL REFERENCES code_systems(code) ON DELETE CASCADE,
		edition_id      TEXT NOT NULL,
		jurisdiction    TEXT NOT NULL DEFAULT '',
		year            INTEGER NOT NULL,
		map_codes       TEXT[] NOT NULL,
		effective_date  DATE NOT NULL,
		superseded_date DATE,
		grace_through   DATE,
		regulation      TEXT NOT NULL DEFAULT '',
		source_url      TEXT NOT NULL DEFAULT '',
		version_number  INTEGER,
		amendments      JSONB,
		PRIMARY KEY (system, edition_id)
	)`,
	`CREATE INDEX IF NOT EXISTS code_editions_effective_idx ON code_editions (system, effective_date)`,
	`CREATE TABLE IF NOT EXISTS province_code_maps (
		province TEXT PRIMARY KEY,
		system   TEXT NOT NULL REFERENCES code_systems(code) ON DELETE CASCADE
	)`,
}

// PostgresSource reads and writes the catalog in PostgreSQL.
type PostgresSource struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewPostgresSource(db *postgres.Client) *PostgresSource {
	return &PostgresSource{
		db:     db,
		logger: slog.Default().With("component", "edition-postgres"),
	}
}

// Load builds a Catalog from code_systems, code_editions and
// province_code_maps.
func (s *PostgresSource) Load(ctx context.Context) (*Catalog, error) {
	systems, err := s.loadSystems(ctx)
	if err != nil {
		return nil, err
	}
	versions, err := s.loadEditions(ctx)
	if err != nil {
		return nil, err
	}
	c, err := NewCatalog(systems, versions)
	if err != nil {
		return nil, fmt.Errorf("building catalog from postgres: %w", err)
	}
	s.logger.Info("catalog loaded", "systems", len(systems), "editions", len(versions))
	return c, nil
}

func (s *PostgresSource) loadSystems(ctx context.Context) ([]System, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT s.code, s.display_name, s.is_national, s.is_guide,
		        COALESCE(array_agg(p.province ORDER BY p.province) FILTER (WHERE p.province IS NOT NULL), '{}')
		 FROM code_systems s
		 LEFT JOIN province_code_maps p ON p.system = s.code
		 GROUP BY s.code, s.display_name, s.is_national, s.is_guide, s.position
		 ORDER BY s.position, s.code`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying code systems: %w", err)
	}
	defer rows.Close()

	var systems []System
	for rows.Next() {
		var sys System
		if err := rows.Scan(&sys.Code, &sys.DisplayName, &sys.National, &sys.Guide, pq.Array(&sys.Jurisdictions)); err != nil {
			return nil, fmt.Errorf("scanning code system row: %w", err)
		}
		systems = append(systems, sys)
	}
	return systems, rows.Err()
}

func (s *PostgresSource) loadEditions(ctx context.Context) ([]Version, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT system, edition_id, jurisdiction, year, map_codes, effective_date,
		        superseded_date, grace_through, regulation, source_url,
		        version_number, amendments
		 FROM code_editions
		 ORDER BY system, effective_date`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying code editions: %w", err)
	}
	defer rows.Close()

	var versions []Version
	for rows.Next() {
		var (
			v             Version
			superseded    sql.NullTime
			grace         sql.NullTime
			versionNumber sql.NullInt64
			amendments    []byte
		)
		err := rows.Scan(&v.System, &v.ID, &v.Jurisdiction, &v.Year, pq.Array(&v.ContentSets),
			&v.EffectiveFrom, &superseded, &grace, &v.Regulation, &v.SourceURL,
			&versionNumber, &amendments)
		if err != nil {
			return nil, fmt.Errorf("scanning code edition row: %w", err)
		}
		v.EffectiveFrom = Day(v.EffectiveFrom)
		if superseded.Valid {
			t := Day(superseded.Time)
			v.SupersededAt = &t
		}
		if grace.Valid {
			v.Transition = &TransitionRule{GraceThrough: Day(grace.Time)}
		}
		v.VersionNumber = int(versionNumber.Int64)
		if len(amendments) > 0 {
			if err := json.Unmarshal(amendments, &v.Amendments); err != nil {
				return nil, fmt.Errorf("decoding amendments of %s: %w", v.CodeName(), err)
			}
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// Save replaces the stored catalog with c in one transaction.
func (s *PostgresSource) Save(ctx context.Context, c *Catalog) error {
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM code_systems`); err != nil {
			return fmt.Errorf("clearing code systems: %w", err)
		}
		for i, sys := range c.Systems() {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO code_systems (code, display_name, is_national, is_guide, position)
				 VALUES ($1, $2, $3, $4, $5)`,
				sys.Code, sys.DisplayName, sys.National, sys.Guide, i,
			); err != nil {
				return fmt.Errorf("inserting system %s: %w", sys.Code, err)
			}
			if sys.National {
				continue
			}
			for _, province := range sys.Jurisdictions {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO province_code_maps (province, system) VALUES ($1, $2)`,
					province, sys.Code,
				); err != nil {
					return fmt.Errorf("mapping province %s: %w", province, err)
				}
			}
		}
		for _, v := range c.versions() {
			if err := insertEdition(ctx, tx, v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving catalog: %w", err)
	}
	s.logger.Info("catalog saved", "editions", len(c.byCodeName))
	return nil
}

func insertEdition(ctx context.Context, tx *sql.Tx, v Version) error {
	var superseded, grace sql.NullTime
	if v.SupersededAt != nil {
		superseded = sql.NullTime{Time: *v.SupersededAt, Valid: true}
	}
	if v.Transition != nil {
		grace = sql.NullTime{Time: v.Transition.GraceThrough, Valid: true}
	}
	var versionNumber sql.NullInt64
	if v.VersionNumber != 0 {
		versionNumber = sql.NullInt64{Int64: int64(v.VersionNumber), Valid: true}
	}
	amendments, err := json.Marshal(v.Amendments)
	if err != nil {
		return fmt.Errorf("encoding amendments of %s: %w", v.CodeName(), err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO code_editions (system, edition_id, jurisdiction, year, map_codes,
		     effective_date, superseded_date, grace_through, regulation, source_url,
		     version_number, amendments)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		v.System, v.ID, v.Jurisdiction, v.Year, pq.Array(v.ContentSets),
		v.EffectiveFrom, superseded, grace, v.Regulation, v.SourceURL,
		versionNumber, amendments,
	)
	if err != nil {
		return fmt.Errorf("inserting edition %s: %w", v.CodeName(), err)
	}
	return nil
}
