package rundb

import (
	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
)

func Migrations(log logs.Log) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE run(
			id INTEGER PRIMARY KEY,
			uuid TEXT NOT NULL,
			start_time INT NOT NULL,
			end_time INT,
			input_dir TEXT NOT NULL,
			output_dir TEXT NOT NULL,
			model TEXT NOT NULL,
			total INT NOT NULL DEFAULT 0,
			succeeded INT NOT NULL DEFAULT 0,
			truncated INT NOT NULL DEFAULT 0,
			skipped INT NOT NULL DEFAULT 0,
			failed INT NOT NULL DEFAULT 0,
			error TEXT
		);

		CREATE TABLE video(
			id INTEGER PRIMARY KEY,
			run_id INT NOT NULL,
			input TEXT NOT NULL,
			output TEXT,
			state TEXT NOT NULL,
			error TEXT,
			width INT,
			height INT,
			fps REAL,
			nominal_frames INT,
			frames_read INT,
			frames_written INT,
			detections INT,
			start_time INT NOT NULL,
			duration_ms INT,
			published TEXT,
			stats BLOB
		);
	`))

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE UNIQUE INDEX idx_run_uuid ON run(uuid);
		CREATE INDEX idx_video_run_id ON video(run_id);
		CREATE INDEX idx_video_input ON video(input);
	`))

	return migs
}
