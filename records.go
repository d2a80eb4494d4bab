package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	colUsuario  = "Usuario"
	colPassword = "Contraseña"
	colTurno    = "Turno Conseguido"

	obtainedSentinel = "SI"
)

// Record is one credential row of the spreadsheet.
type Record struct {
	Row      int // 1-based sheet row
	Usuario  string
	Password string
	Obtained string
}

// Done reports whether the row is already marked as having a slot.
func (r Record) Done() bool {
	return strings.EqualFold(strings.TrimSpace(r.Obtained), obtainedSentinel)
}

// RecordStore wraps the credentials spreadsheet. Workers mark successes
// concurrently, so the read-modify-persist sequence runs under one lock:
// letting each worker rewrite the file independently would lose updates.
type RecordStore struct {
	mu    sync.Mutex
	path  string
	file  *excelize.File
	sheet string
	log   *zap.SugaredLogger

	colTurnoIdx int // 0-based column index of the status column
	records     []Record
}

func OpenRecordStore(path string, log *zap.SugaredLogger) (*RecordStore, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not open spreadsheet %s: %w", path, err)
	}

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("could not read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("spreadsheet %s has no header row", path)
	}

	header := rows[0]
	idxUsuario, idxPassword, idxTurno := -1, -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case colUsuario:
			idxUsuario = i
		case colPassword:
			idxPassword = i
		case colTurno:
			idxTurno = i
		}
	}
	if idxUsuario < 0 || idxPassword < 0 {
		return nil, fmt.Errorf("spreadsheet %s is missing the %q/%q columns", path, colUsuario, colPassword)
	}

	s := &RecordStore{path: path, file: f, sheet: sheet, log: log}

	if idxTurno < 0 {
		// Status column absent on first runs; create it.
		idxTurno = len(header)
		cell, err := excelize.CoordinatesToCellName(idxTurno+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, colTurno); err != nil {
			return nil, err
		}
	}
	s.colTurnoIdx = idxTurno

	cellAt := func(row []string, idx int) string {
		if idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}

	for i, row := range rows[1:] {
		s.records = append(s.records, Record{
			Row:      i + 2,
			Usuario:  cellAt(row, idxUsuario),
			Password: cellAt(row, idxPassword),
			Obtained: cellAt(row, idxTurno),
		})
	}

	return s, nil
}

// Records returns a copy of the credential rows as loaded at startup.
func (s *RecordStore) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// MarkObtained flags a row as successful and persists the whole store
// right away, so a later crash cannot lose an already won slot. A failed
// save is logged and the in-memory update stands.
func (s *RecordStore) MarkObtained(row int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.records[i].Row == row {
			s.records[i].Obtained = obtainedSentinel
		}
	}

	cell, err := excelize.CoordinatesToCellName(s.colTurnoIdx+1, row)
	if err != nil {
		s.log.Errorw("could not address status cell", "row", row, "error", err)
		return
	}
	if err := s.file.SetCellValue(s.sheet, cell, obtainedSentinel); err != nil {
		s.log.Errorw("could not update status cell", "row", row, "error", err)
		return
	}
	if err := s.file.Save(); err != nil {
		s.log.Errorw("could not save spreadsheet", "path", s.path, "error", err)
	}
}

func (s *RecordStore) Close() error {
	return s.file.Close()
}
