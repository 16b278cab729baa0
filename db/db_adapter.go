// Package db persists segment and word-timing records in a local sqlite file.
// Every stage after analysis reads from here rather than re-deriving timings.
package db

import (
	"context"
	"database/sql"
	"path/filepath"

	log "github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/logger"
	_ "github.com/mattn/go-sqlite3"
)

type DBAdapter struct {
	Ctx          context.Context
	DB           *sql.DB
	DatabasePath string
}

// Segment is one row of the segments table, mirroring the request's segment
// table plus the path of the extracted reference audio.
type Segment struct {
	SegmentId  string
	BeginTS    float64
	EndTS      float64
	ReusedFrom string
	AudioFile  string
}

// Word is one transcribed word with timings in both coordinate frames.
// BeginTS/EndTS are segment-relative; BeginAbs/EndAbs are song-absolute.
type Word struct {
	WordId    int64
	SegmentId string
	WordSeq   int
	Word      string
	BeginTS   float64
	EndTS     float64
	BeginAbs  float64
	EndAbs    float64
	PitchHz   float64
	EnergyDB  float64
}

func (w *Word) Duration() float64 {
	return w.EndTS - w.BeginTS
}

func NewDBAdapter(ctx context.Context, directory string, datasetName string) (DBAdapter, *log.Status) {
	var conn DBAdapter
	conn.Ctx = ctx
	conn.DatabasePath = filepath.Join(directory, datasetName+".db")
	var err error
	conn.DB, err = sql.Open("sqlite3", conn.DatabasePath)
	if err != nil {
		return conn, log.Error(ctx, 500, err, "Error opening database", conn.DatabasePath)
	}
	status := conn.createTables()
	return conn, status
}

func (d *DBAdapter) createTables() *log.Status {
	query := `CREATE TABLE IF NOT EXISTS segments (
		segment_id TEXT PRIMARY KEY,
		begin_ts REAL NOT NULL,
		end_ts REAL NOT NULL,
		reused_from TEXT NOT NULL DEFAULT '',
		audio_file TEXT NOT NULL DEFAULT '')`
	_, err := d.DB.Exec(query)
	if err != nil {
		return log.Error(d.Ctx, 500, err, query)
	}
	query = `CREATE TABLE IF NOT EXISTS words (
		word_id INTEGER PRIMARY KEY AUTOINCREMENT,
		segment_id TEXT NOT NULL,
		word_seq INTEGER NOT NULL,
		word TEXT NOT NULL,
		word_begin_ts REAL NOT NULL,
		word_end_ts REAL NOT NULL,
		word_begin_abs REAL NOT NULL,
		word_end_abs REAL NOT NULL,
		pitch_hz REAL NOT NULL DEFAULT 0,
		energy_db REAL NOT NULL DEFAULT 0)`
	_, err = d.DB.Exec(query)
	if err != nil {
		return log.Error(d.Ctx, 500, err, query)
	}
	return nil
}

func (d *DBAdapter) UpsertSegment(seg Segment) *log.Status {
	query := `INSERT INTO segments (segment_id, begin_ts, end_ts, reused_from, audio_file)
		VALUES (?,?,?,?,?)
		ON CONFLICT(segment_id) DO UPDATE SET begin_ts=excluded.begin_ts,
		end_ts=excluded.end_ts, reused_from=excluded.reused_from, audio_file=excluded.audio_file`
	_, err := d.DB.Exec(query, seg.SegmentId, seg.BeginTS, seg.EndTS, seg.ReusedFrom, seg.AudioFile)
	if err != nil {
		return log.Error(d.Ctx, 500, err, query)
	}
	return nil
}

func (d *DBAdapter) SelectSegments() ([]Segment, *log.Status) {
	var results []Segment
	query := `SELECT segment_id, begin_ts, end_ts, reused_from, audio_file
		FROM segments ORDER BY begin_ts`
	rows, err := d.DB.Query(query)
	if err != nil {
		return results, log.Error(d.Ctx, 500, err, query)
	}
	defer rows.Close()
	for rows.Next() {
		var s Segment
		err = rows.Scan(&s.SegmentId, &s.BeginTS, &s.EndTS, &s.ReusedFrom, &s.AudioFile)
		if err != nil {
			return results, log.Error(d.Ctx, 500, err, query)
		}
		results = append(results, s)
	}
	err = rows.Err()
	if err != nil {
		return results, log.Error(d.Ctx, 500, err, query)
	}
	return results, nil
}

// ReplaceWords deletes any existing words for the segment and inserts the new
// sequence in one transaction.
func (d *DBAdapter) ReplaceWords(segmentId string, words []Word) *log.Status {
	tx, err := d.DB.Begin()
	if err != nil {
		return log.Error(d.Ctx, 500, err, "Error starting transaction")
	}
	_, err = tx.Exec(`DELETE FROM words WHERE segment_id = ?`, segmentId)
	if err != nil {
		tx.Rollback()
		return log.Error(d.Ctx, 500, err, "Error deleting words", segmentId)
	}
	query := `INSERT INTO words (segment_id, word_seq, word, word_begin_ts, word_end_ts,
		word_begin_abs, word_end_abs, pitch_hz, energy_db) VALUES (?,?,?,?,?,?,?,?,?)`
	stmt, err := tx.Prepare(query)
	if err != nil {
		tx.Rollback()
		return log.Error(d.Ctx, 500, err, query)
	}
	defer stmt.Close()
	for _, w := range words {
		_, err = stmt.Exec(segmentId, w.WordSeq, w.Word, w.BeginTS, w.EndTS,
			w.BeginAbs, w.EndAbs, w.PitchHz, w.EnergyDB)
		if err != nil {
			tx.Rollback()
			return log.Error(d.Ctx, 500, err, `Error inserting word`, segmentId, w.WordSeq)
		}
	}
	err = tx.Commit()
	if err != nil {
		return log.Error(d.Ctx, 500, err, query)
	}
	return nil
}

func (d *DBAdapter) SelectWordsBySegment(segmentId string) ([]Word, *log.Status) {
	var results []Word
	query := `SELECT word_id, segment_id, word_seq, word, word_begin_ts, word_end_ts,
		word_begin_abs, word_end_abs, pitch_hz, energy_db
		FROM words WHERE segment_id = ? ORDER BY word_seq`
	rows, err := d.DB.Query(query, segmentId)
	if err != nil {
		return results, log.Error(d.Ctx, 500, err, query, segmentId)
	}
	defer rows.Close()
	for rows.Next() {
		var w Word
		err = rows.Scan(&w.WordId, &w.SegmentId, &w.WordSeq, &w.Word, &w.BeginTS, &w.EndTS,
			&w.BeginAbs, &w.EndAbs, &w.PitchHz, &w.EnergyDB)
		if err != nil {
			return results, log.Error(d.Ctx, 500, err, query, segmentId)
		}
		results = append(results, w)
	}
	err = rows.Err()
	if err != nil {
		return results, log.Error(d.Ctx, 500, err, query, segmentId)
	}
	return results, nil
}

// TrimWordsAfter removes every word past the given sequence number and shrinks
// the segment's end timestamps to the last kept word.
func (d *DBAdapter) TrimWordsAfter(segmentId string, lastWordSeq int) *log.Status {
	words, status := d.SelectWordsBySegment(segmentId)
	if status != nil {
		return status
	}
	var lastEndAbs float64
	var found bool
	for _, w := range words {
		if w.WordSeq == lastWordSeq {
			lastEndAbs = w.EndAbs
			found = true
			break
		}
	}
	if !found {
		return log.ErrorNoErr(d.Ctx, 404, "Word seq not found for trim", segmentId, lastWordSeq)
	}
	tx, err := d.DB.Begin()
	if err != nil {
		return log.Error(d.Ctx, 500, err, "Error starting transaction")
	}
	_, err = tx.Exec(`DELETE FROM words WHERE segment_id = ? AND word_seq > ?`, segmentId, lastWordSeq)
	if err != nil {
		tx.Rollback()
		return log.Error(d.Ctx, 500, err, "Error trimming words", segmentId)
	}
	_, err = tx.Exec(`UPDATE segments SET end_ts = ? WHERE segment_id = ?`, lastEndAbs, segmentId)
	if err != nil {
		tx.Rollback()
		return log.Error(d.Ctx, 500, err, "Error updating segment end", segmentId)
	}
	err = tx.Commit()
	if err != nil {
		return log.Error(d.Ctx, 500, err, "Error committing trim", segmentId)
	}
	return nil
}

func (d *DBAdapter) Close() {
	if d.DB != nil {
		_ = d.DB.Close()
	}
}
