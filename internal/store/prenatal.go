package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jvillanueva/hilot/internal/model"
)

type PrenatalStore struct {
	db *sql.DB
}

func NewPrenatalStore(db *sql.DB) *PrenatalStore {
	return &PrenatalStore{db: db}
}

const prenatalCols = `id, patient_id, gravida, para, last_menstrual_date, expected_delivery, risk_level, notes, active, created_at, updated_at`

func scanPrenatal(scanner interface{ Scan(...any) error }) (*model.PrenatalRecord, error) {
	var r model.PrenatalRecord
	var lmd, edd sql.NullTime
	var active int
	err := scanner.Scan(
		&r.ID, &r.PatientID, &r.Gravida, &r.Para, &lmd, &edd,
		&r.RiskLevel, &r.Notes, &active, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Active = active != 0
	if lmd.Valid {
		r.LastMenstrualDate = &lmd.Time
	}
	if edd.Valid {
		r.ExpectedDelivery = &edd.Time
	}
	return &r, nil
}

func (s *PrenatalStore) Create(r *model.PrenatalRecord) (*model.PrenatalRecord, error) {
	var lmd, edd sql.NullTime
	if r.LastMenstrualDate != nil {
		lmd = sql.NullTime{Time: *r.LastMenstrualDate, Valid: true}
	}
	if r.ExpectedDelivery != nil {
		edd = sql.NullTime{Time: *r.ExpectedDelivery, Valid: true}
	}
	result, err := s.db.Exec(
		`INSERT INTO prenatal_records (patient_id, gravida, para, last_menstrual_date, expected_delivery, risk_level, notes, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 1)`,
		r.PatientID, r.Gravida, r.Para, lmd, edd, r.RiskLevel, r.Notes,
	)
	if err != nil {
		return nil, fmt.Errorf("insert prenatal record: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *PrenatalStore) GetByID(id int64) (*model.PrenatalRecord, error) {
	row := s.db.QueryRow(`SELECT `+prenatalCols+` FROM prenatal_records WHERE id = ?`, id)
	r, err := scanPrenatal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get prenatal record: %w", err)
	}
	return r, nil
}

func (s *PrenatalStore) ListByPatient(patientID int64) ([]model.PrenatalRecord, error) {
	rows, err := s.db.Query(`SELECT `+prenatalCols+` FROM prenatal_records WHERE patient_id = ? ORDER BY created_at DESC`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list prenatal records: %w", err)
	}
	defer rows.Close()

	var records []model.PrenatalRecord
	for rows.Next() {
		r, err := scanPrenatal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prenatal record: %w", err)
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

func (s *PrenatalStore) Close(id int64) error {
	_, err := s.db.Exec(`UPDATE prenatal_records SET active = 0, updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("close prenatal record: %w", err)
	}
	return nil
}

// AddCheckup appends a checkup visit to a prenatal record.
func (s *PrenatalStore) AddCheckup(c *model.PrenatalCheckup) (*model.PrenatalCheckup, error) {
	var nextVisit sql.NullTime
	if c.NextVisit != nil {
		nextVisit = sql.NullTime{Time: *c.NextVisit, Valid: true}
	}
	var recordedBy sql.NullInt64
	if c.RecordedBy != nil {
		recordedBy = sql.NullInt64{Int64: *c.RecordedBy, Valid: true}
	}
	result, err := s.db.Exec(
		`INSERT INTO prenatal_checkups (prenatal_id, checkup_date, weeks_gestation, weight_kg, blood_pressure, fundal_height_cm, fetal_heart_rate, findings, next_visit, recorded_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.PrenatalID, c.CheckupDate, c.WeeksGestation, c.WeightKg, c.BloodPressure,
		c.FundalHeightCm, c.FetalHeartRate, c.Findings, nextVisit, recordedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("insert checkup: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetCheckup(id)
}

func (s *PrenatalStore) GetCheckup(id int64) (*model.PrenatalCheckup, error) {
	var c model.PrenatalCheckup
	var nextVisit sql.NullTime
	var recordedBy sql.NullInt64
	err := s.db.QueryRow(
		`SELECT id, prenatal_id, checkup_date, weeks_gestation, weight_kg, blood_pressure, fundal_height_cm, fetal_heart_rate, findings, next_visit, recorded_by, created_at
		 FROM prenatal_checkups WHERE id = ?`, id,
	).Scan(&c.ID, &c.PrenatalID, &c.CheckupDate, &c.WeeksGestation, &c.WeightKg, &c.BloodPressure,
		&c.FundalHeightCm, &c.FetalHeartRate, &c.Findings, &nextVisit, &recordedBy, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checkup: %w", err)
	}
	if nextVisit.Valid {
		c.NextVisit = &nextVisit.Time
	}
	if recordedBy.Valid {
		c.RecordedBy = &recordedBy.Int64
	}
	return &c, nil
}

func (s *PrenatalStore) ListCheckups(prenatalID int64) ([]model.PrenatalCheckup, error) {
	rows, err := s.db.Query(
		`SELECT id, prenatal_id, checkup_date, weeks_gestation, weight_kg, blood_pressure, fundal_height_cm, fetal_heart_rate, findings, next_visit, recorded_by, created_at
		 FROM prenatal_checkups WHERE prenatal_id = ? ORDER BY checkup_date DESC`, prenatalID,
	)
	if err != nil {
		return nil, fmt.Errorf("list checkups: %w", err)
	}
	defer rows.Close()

	var checkups []model.PrenatalCheckup
	for rows.Next() {
		var c model.PrenatalCheckup
		var nextVisit sql.NullTime
		var recordedBy sql.NullInt64
		if err := rows.Scan(&c.ID, &c.PrenatalID, &c.CheckupDate, &c.WeeksGestation, &c.WeightKg, &c.BloodPressure,
			&c.FundalHeightCm, &c.FetalHeartRate, &c.Findings, &nextVisit, &recordedBy, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan checkup: %w", err)
		}
		if nextVisit.Valid {
			c.NextVisit = &nextVisit.Time
		}
		if recordedBy.Valid {
			c.RecordedBy = &recordedBy.Int64
		}
		checkups = append(checkups, c)
	}
	return checkups, rows.Err()
}
