package store

import (
	"database/sql"
	"fmt"

	"github.com/jvillanueva/hilot/internal/model"
)

type ImmunizationStore struct {
	db *sql.DB
}

func NewImmunizationStore(db *sql.DB) *ImmunizationStore {
	return &ImmunizationStore{db: db}
}

const immunizationCols = `id, child_id, vaccine_id, dose_number, date_given, administered_by, batch_number, remarks, next_dose_date, created_at`

func scanImmunization(scanner interface{ Scan(...any) error }) (*model.Immunization, error) {
	var im model.Immunization
	var administeredBy sql.NullInt64
	var nextDose sql.NullTime
	err := scanner.Scan(
		&im.ID, &im.ChildID, &im.VaccineID, &im.DoseNumber, &im.DateGiven,
		&administeredBy, &im.BatchNumber, &im.Remarks, &nextDose, &im.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if administeredBy.Valid {
		im.AdministeredBy = &administeredBy.Int64
	}
	if nextDose.Valid {
		im.NextDoseDate = &nextDose.Time
	}
	return &im, nil
}

func (s *ImmunizationStore) Create(im *model.Immunization) (*model.Immunization, error) {
	var administeredBy sql.NullInt64
	if im.AdministeredBy != nil {
		administeredBy = sql.NullInt64{Int64: *im.AdministeredBy, Valid: true}
	}
	var nextDose sql.NullTime
	if im.NextDoseDate != nil {
		nextDose = sql.NullTime{Time: *im.NextDoseDate, Valid: true}
	}
	result, err := s.db.Exec(
		`INSERT INTO immunizations (child_id, vaccine_id, dose_number, date_given, administered_by, batch_number, remarks, next_dose_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		im.ChildID, im.VaccineID, im.DoseNumber, im.DateGiven, administeredBy, im.BatchNumber, im.Remarks, nextDose,
	)
	if err != nil {
		return nil, fmt.Errorf("insert immunization: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *ImmunizationStore) GetByID(id int64) (*model.Immunization, error) {
	row := s.db.QueryRow(`SELECT `+immunizationCols+` FROM immunizations WHERE id = ?`, id)
	im, err := scanImmunization(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get immunization: %w", err)
	}
	return im, nil
}

func (s *ImmunizationStore) ListByChild(childID int64) ([]model.Immunization, error) {
	rows, err := s.db.Query(`SELECT `+immunizationCols+` FROM immunizations WHERE child_id = ? ORDER BY date_given DESC`, childID)
	if err != nil {
		return nil, fmt.Errorf("list immunizations: %w", err)
	}
	defer rows.Close()

	var ims []model.Immunization
	for rows.Next() {
		im, err := scanImmunization(rows)
		if err != nil {
			return nil, fmt.Errorf("scan immunization: %w", err)
		}
		ims = append(ims, *im)
	}
	return ims, rows.Err()
}

func (s *ImmunizationStore) Delete(id int64) error {
	result, err := s.db.Exec(`DELETE FROM immunizations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete immunization: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
