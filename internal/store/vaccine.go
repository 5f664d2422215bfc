package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jvillanueva/hilot/internal/model"
)

type VaccineStore struct {
	db *sql.DB
}

func NewVaccineStore(db *sql.DB) *VaccineStore {
	return &VaccineStore{db: db}
}

const vaccineCols = `id, name, manufacturer, doses_required, interval_weeks, min_age_weeks, stock_on_hand, reorder_level, storage_temp_min, storage_temp_max, created_at, updated_at`

func scanVaccine(scanner interface{ Scan(...any) error }) (*model.Vaccine, error) {
	var v model.Vaccine
	err := scanner.Scan(
		&v.ID, &v.Name, &v.Manufacturer, &v.DosesRequired, &v.IntervalWeeks, &v.MinAgeWeeks,
		&v.StockOnHand, &v.ReorderLevel, &v.StorageTempMin, &v.StorageTempMax, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *VaccineStore) Create(v *model.Vaccine) (*model.Vaccine, error) {
	result, err := s.db.Exec(
		`INSERT INTO vaccines (name, manufacturer, doses_required, interval_weeks, min_age_weeks, stock_on_hand, reorder_level, storage_temp_min, storage_temp_max)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.Name, v.Manufacturer, v.DosesRequired, v.IntervalWeeks, v.MinAgeWeeks,
		v.StockOnHand, v.ReorderLevel, v.StorageTempMin, v.StorageTempMax,
	)
	if err != nil {
		return nil, fmt.Errorf("insert vaccine: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *VaccineStore) GetByID(id int64) (*model.Vaccine, error) {
	row := s.db.QueryRow(`SELECT `+vaccineCols+` FROM vaccines WHERE id = ?`, id)
	v, err := scanVaccine(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vaccine: %w", err)
	}
	return v, nil
}

func (s *VaccineStore) List() ([]model.Vaccine, error) {
	rows, err := s.db.Query(`SELECT ` + vaccineCols + ` FROM vaccines ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list vaccines: %w", err)
	}
	defer rows.Close()

	var vaccines []model.Vaccine
	for rows.Next() {
		v, err := scanVaccine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vaccine: %w", err)
		}
		vaccines = append(vaccines, *v)
	}
	return vaccines, rows.Err()
}

// RecordTransaction appends a stock movement and adjusts stock_on_hand in the
// same transaction. Administered and expired movements subtract; received and
// positive adjustments add.
func (s *VaccineStore) RecordTransaction(t *model.VaccineTransaction) (*model.VaccineTransaction, error) {
	delta := t.Quantity
	switch t.Type {
	case model.VaccineTxAdministered, model.VaccineTxExpired:
		delta = -t.Quantity
	case model.VaccineTxReceived, model.VaccineTxAdjustment:
	default:
		return nil, fmt.Errorf("unknown transaction type %q", t.Type)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var expiry sql.NullTime
	if t.ExpiryDate != nil {
		expiry = sql.NullTime{Time: *t.ExpiryDate, Valid: true}
	}
	var recordedBy sql.NullInt64
	if t.RecordedBy != nil {
		recordedBy = sql.NullInt64{Int64: *t.RecordedBy, Valid: true}
	}

	result, err := tx.Exec(
		`INSERT INTO vaccine_transactions (vaccine_id, type, quantity, batch_number, expiry_date, remarks, recorded_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.VaccineID, t.Type, t.Quantity, t.BatchNumber, expiry, t.Remarks, recordedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}

	if _, err := tx.Exec(
		`UPDATE vaccines SET stock_on_hand = stock_on_hand + ?, updated_at = ? WHERE id = ?`,
		delta, time.Now().UTC(), t.VaccineID,
	); err != nil {
		return nil, fmt.Errorf("adjust stock: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	id, _ := result.LastInsertId()
	return s.GetTransaction(id)
}

func (s *VaccineStore) GetTransaction(id int64) (*model.VaccineTransaction, error) {
	var t model.VaccineTransaction
	var expiry sql.NullTime
	var recordedBy sql.NullInt64
	err := s.db.QueryRow(
		`SELECT id, vaccine_id, type, quantity, batch_number, expiry_date, remarks, recorded_by, created_at
		 FROM vaccine_transactions WHERE id = ?`, id,
	).Scan(&t.ID, &t.VaccineID, &t.Type, &t.Quantity, &t.BatchNumber, &expiry, &t.Remarks, &recordedBy, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	if expiry.Valid {
		t.ExpiryDate = &expiry.Time
	}
	if recordedBy.Valid {
		t.RecordedBy = &recordedBy.Int64
	}
	return &t, nil
}

func (s *VaccineStore) ListTransactions(vaccineID int64, limit int) ([]model.VaccineTransaction, error) {
	rows, err := s.db.Query(
		`SELECT id, vaccine_id, type, quantity, batch_number, expiry_date, remarks, recorded_by, created_at
		 FROM vaccine_transactions WHERE vaccine_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		vaccineID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []model.VaccineTransaction
	for rows.Next() {
		var t model.VaccineTransaction
		var expiry sql.NullTime
		var recordedBy sql.NullInt64
		if err := rows.Scan(&t.ID, &t.VaccineID, &t.Type, &t.Quantity, &t.BatchNumber, &expiry, &t.Remarks, &recordedBy, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if expiry.Valid {
			t.ExpiryDate = &expiry.Time
		}
		if recordedBy.Valid {
			t.RecordedBy = &recordedBy.Int64
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// LowStock returns vaccines at or below their reorder level.
func (s *VaccineStore) LowStock() ([]model.Vaccine, error) {
	rows, err := s.db.Query(`SELECT ` + vaccineCols + ` FROM vaccines WHERE stock_on_hand <= reorder_level ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list low stock: %w", err)
	}
	defer rows.Close()

	var vaccines []model.Vaccine
	for rows.Next() {
		v, err := scanVaccine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vaccine: %w", err)
		}
		vaccines = append(vaccines, *v)
	}
	return vaccines, rows.Err()
}
