package storage

import (
	_ "embed"
)

//go:embed schema.sql
var initSchemaSQL string

const (
	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_flight_log_date ON flight_log (date, flight_name)`

	insertRouteSQL = `
INSERT INTO flight_routes (flight_route,
                           base_path,
                           base_name,
                           base_drone,
                           base_height,
                           base_type,
                           base_overlap)
VALUES (?, ?, ?, ?, ?, ?, ?)`

	selectRoutesSQL = `
SELECT 
    flight_route,
    base_path,
    base_name,
    base_drone,
    base_height,
    base_type,
    base_overlap
FROM flight_routes
ORDER BY id`

	insertFlightLogSQL = `
INSERT OR IGNORE INTO flight_log (dir_name,
                                  flight_name,
                                  date,
                                  folder_id,
                                  start_time,
                                  end_time,
                                  type,
                                  num_files,
                                  num_dir,
                                  output_path,
                                  height)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectFlightLogSQL = `
SELECT 
    dir_name,
    flight_name,
    date,
    folder_id,
    start_time,
    end_time,
    type,
    num_files,
    num_dir,
    output_path,
    height
FROM flight_log
ORDER BY id`
)
