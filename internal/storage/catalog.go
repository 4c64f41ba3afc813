package storage

import (
	"context"
	"database/sql"
	"errors"
)

type SubjectDetails struct {
	Shortcut    string
	Name        string
	Credits     int
	Semester    string
	EndSemester string
	Card        string
	Year        string
	Type        string
	Degree      string
}

type Programme struct {
	Shortcut string
	Name     string
	Link     string
}

func (s *Store) UpsertSubjectDetails(ctx context.Context, details SubjectDetails) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO bot_subjects_details (shortcut, name, credits, semester, end_semester, card, year, type, degree)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(shortcut) DO UPDATE SET
			name = excluded.name,
			credits = excluded.credits,
			semester = excluded.semester,
			end_semester = excluded.end_semester,
			card = excluded.card,
			year = excluded.year,
			type = excluded.type,
			degree = excluded.degree
	`),
		details.Shortcut,
		details.Name,
		details.Credits,
		details.Semester,
		details.EndSemester,
		details.Card,
		details.Year,
		details.Type,
		details.Degree,
	)
	return err
}

func (s *Store) GetSubjectDetails(ctx context.Context, shortcut string) (SubjectDetails, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT shortcut, name, credits, semester, end_semester, card, year, type, degree
		FROM bot_subjects_details WHERE shortcut = ?
	`), shortcut)

	var d SubjectDetails
	err := row.Scan(&d.Shortcut, &d.Name, &d.Credits, &d.Semester, &d.EndSemester, &d.Card, &d.Year, &d.Type, &d.Degree)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SubjectDetails{}, ErrNotFound
		}
		return SubjectDetails{}, err
	}
	return d, nil
}

func (s *Store) UpsertProgramme(ctx context.Context, programme Programme) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO bot_programme (shortcut, name, link) VALUES (?, ?, ?)
		ON CONFLICT(shortcut) DO UPDATE SET name = excluded.name, link = excluded.link
	`), programme.Shortcut, programme.Name, programme.Link)
	return err
}

func (s *Store) ListProgrammes(ctx context.Context) ([]Programme, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT shortcut, name, link FROM bot_programme ORDER BY shortcut`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var programmes []Programme
	for rows.Next() {
		var p Programme
		if err := rows.Scan(&p.Shortcut, &p.Name, &p.Link); err != nil {
			return nil, err
		}
		programmes = append(programmes, p)
	}
	return programmes, rows.Err()
}
