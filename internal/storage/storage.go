// Package storage persists map-matching trace records to SQLite.
package storage

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"

	"github.com/roadsense/mapmatch/internal/inference"
)

// TraceDB wraps the SQLite handle holding match traces.
type TraceDB struct {
	*sql.DB
}

// schema.sql defines the match_trace table and its indexes.
//
//go:embed schema.sql
var schemaSQL string

// Open opens (creating if necessary) the trace database at path and
// applies the schema.
func Open(path string) (*TraceDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply trace schema: %w", err)
	}
	log.Println("initialized match trace database schema")
	return &TraceDB{db}, nil
}

// InsertTrace persists one trace record and returns its row ID.
func (t *TraceDB) InsertTrace(rec inference.TraceRecord) (int64, error) {
	stmt := `INSERT INTO match_trace
		(run_id, vehicle_id, step, observed_unix_nanos, obs_x, obs_y,
		 est_x, est_y, est_vx, est_vy, edge_id, edge_share, on_road)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := t.Exec(stmt,
		rec.RunID, rec.VehicleID, rec.Step, rec.Time.UnixNano(),
		rec.ObsX, rec.ObsY,
		rec.Estimate.X, rec.Estimate.Y, rec.Estimate.VX, rec.Estimate.VY,
		rec.Estimate.EdgeID, rec.Estimate.EdgeShare, boolToInt(rec.Estimate.OnRoad))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// InsertTraces persists a batch of records in one transaction.
func (t *TraceDB) InsertTraces(recs []inference.TraceRecord) error {
	tx, err := t.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO match_trace
		(run_id, vehicle_id, step, observed_unix_nanos, obs_x, obs_y,
		 est_x, est_y, est_vx, est_vy, edge_id, edge_share, on_road)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, rec := range recs {
		if _, err := stmt.Exec(
			rec.RunID, rec.VehicleID, rec.Step, rec.Time.UnixNano(),
			rec.ObsX, rec.ObsY,
			rec.Estimate.X, rec.Estimate.Y, rec.Estimate.VX, rec.Estimate.VY,
			rec.Estimate.EdgeID, rec.Estimate.EdgeShare, boolToInt(rec.Estimate.OnRoad)); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert trace for %s step %d: %w", rec.VehicleID, rec.Step, err)
		}
	}
	return tx.Commit()
}

// TracesForVehicle returns a vehicle's trace ordered by observation
// time.
func (t *TraceDB) TracesForVehicle(vehicleID string) ([]inference.TraceRecord, error) {
	rows, err := t.Query(`SELECT run_id, vehicle_id, step, observed_unix_nanos,
		obs_x, obs_y, est_x, est_y, est_vx, est_vy, edge_id, edge_share, on_road
		FROM match_trace WHERE vehicle_id = ? ORDER BY observed_unix_nanos`, vehicleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []inference.TraceRecord
	for rows.Next() {
		var rec inference.TraceRecord
		var nanos int64
		var onRoad int
		if err := rows.Scan(&rec.RunID, &rec.VehicleID, &rec.Step, &nanos,
			&rec.ObsX, &rec.ObsY,
			&rec.Estimate.X, &rec.Estimate.Y, &rec.Estimate.VX, &rec.Estimate.VY,
			&rec.Estimate.EdgeID, &rec.Estimate.EdgeShare, &onRoad); err != nil {
			return nil, err
		}
		rec.Time = time.Unix(0, nanos).UTC()
		rec.Estimate.OnRoad = onRoad != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
