package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jvillanueva/hilot/internal/model"
)

type PatientStore struct {
	db *sql.DB
}

func NewPatientStore(db *sql.DB) *PatientStore {
	return &PatientStore{db: db}
}

const patientCols = `id, first_name, last_name, birth_date, sex, address, contact_number, philhealth_no, blood_type, created_at, updated_at`

func scanPatient(scanner interface{ Scan(...any) error }) (*model.Patient, error) {
	var p model.Patient
	var birthDate sql.NullTime
	err := scanner.Scan(
		&p.ID, &p.FirstName, &p.LastName, &birthDate, &p.Sex, &p.Address,
		&p.ContactNumber, &p.PhilhealthNo, &p.BloodType, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if birthDate.Valid {
		p.BirthDate = &birthDate.Time
	}
	return &p, nil
}

func (s *PatientStore) Create(p *model.Patient) (*model.Patient, error) {
	var birthDate sql.NullTime
	if p.BirthDate != nil {
		birthDate = sql.NullTime{Time: *p.BirthDate, Valid: true}
	}
	result, err := s.db.Exec(
		`INSERT INTO patients (first_name, last_name, birth_date, sex, address, contact_number, philhealth_no, blood_type)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.FirstName, p.LastName, birthDate, p.Sex, p.Address, p.ContactNumber, p.PhilhealthNo, p.BloodType,
	)
	if err != nil {
		return nil, fmt.Errorf("insert patient: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *PatientStore) GetByID(id int64) (*model.Patient, error) {
	row := s.db.QueryRow(`SELECT `+patientCols+` FROM patients WHERE id = ?`, id)
	p, err := scanPatient(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return p, nil
}

func (s *PatientStore) List() ([]model.Patient, error) {
	rows, err := s.db.Query(`SELECT ` + patientCols + ` FROM patients ORDER BY last_name, first_name`)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var patients []model.Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		patients = append(patients, *p)
	}
	return patients, rows.Err()
}

func (s *PatientStore) Update(id int64, p *model.Patient) (*model.Patient, error) {
	var birthDate sql.NullTime
	if p.BirthDate != nil {
		birthDate = sql.NullTime{Time: *p.BirthDate, Valid: true}
	}
	_, err := s.db.Exec(
		`UPDATE patients SET first_name = ?, last_name = ?, birth_date = ?, sex = ?, address = ?,
		        contact_number = ?, philhealth_no = ?, blood_type = ?, updated_at = ?
		 WHERE id = ?`,
		p.FirstName, p.LastName, birthDate, p.Sex, p.Address, p.ContactNumber, p.PhilhealthNo, p.BloodType,
		time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update patient: %w", err)
	}
	return s.GetByID(id)
}

func (s *PatientStore) Delete(id int64) error {
	result, err := s.db.Exec(`DELETE FROM patients WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
