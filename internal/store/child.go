package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jvillanueva/hilot/internal/model"
)

type ChildStore struct {
	db *sql.DB
}

func NewChildStore(db *sql.DB) *ChildStore {
	return &ChildStore{db: db}
}

const childCols = `id, mother_id, first_name, last_name, birth_date, sex, birth_weight_kg, birth_length_cm, place_of_birth, delivery_type, newborn_screened, screening_date, created_at, updated_at`

func scanChild(scanner interface{ Scan(...any) error }) (*model.Child, error) {
	var c model.Child
	var motherID sql.NullInt64
	var screeningDate sql.NullTime
	var screened int
	err := scanner.Scan(
		&c.ID, &motherID, &c.FirstName, &c.LastName, &c.BirthDate, &c.Sex,
		&c.BirthWeightKg, &c.BirthLengthCm, &c.PlaceOfBirth, &c.DeliveryType,
		&screened, &screeningDate, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.NewbornScreened = screened != 0
	if motherID.Valid {
		c.MotherID = &motherID.Int64
	}
	if screeningDate.Valid {
		c.ScreeningDate = &screeningDate.Time
	}
	return &c, nil
}

func (s *ChildStore) Create(c *model.Child) (*model.Child, error) {
	var motherID sql.NullInt64
	if c.MotherID != nil {
		motherID = sql.NullInt64{Int64: *c.MotherID, Valid: true}
	}
	var screeningDate sql.NullTime
	if c.ScreeningDate != nil {
		screeningDate = sql.NullTime{Time: *c.ScreeningDate, Valid: true}
	}
	result, err := s.db.Exec(
		`INSERT INTO children (mother_id, first_name, last_name, birth_date, sex, birth_weight_kg, birth_length_cm, place_of_birth, delivery_type, newborn_screened, screening_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		motherID, c.FirstName, c.LastName, c.BirthDate, c.Sex, c.BirthWeightKg, c.BirthLengthCm,
		c.PlaceOfBirth, c.DeliveryType, boolInt(c.NewbornScreened), screeningDate,
	)
	if err != nil {
		return nil, fmt.Errorf("insert child: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *ChildStore) GetByID(id int64) (*model.Child, error) {
	row := s.db.QueryRow(`SELECT `+childCols+` FROM children WHERE id = ?`, id)
	c, err := scanChild(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get child: %w", err)
	}
	return c, nil
}

func (s *ChildStore) List() ([]model.Child, error) {
	rows, err := s.db.Query(`SELECT ` + childCols + ` FROM children ORDER BY last_name, first_name`)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	var children []model.Child
	for rows.Next() {
		c, err := scanChild(rows)
		if err != nil {
			return nil, fmt.Errorf("scan child: %w", err)
		}
		children = append(children, *c)
	}
	return children, rows.Err()
}

func (s *ChildStore) Update(id int64, c *model.Child) (*model.Child, error) {
	var motherID sql.NullInt64
	if c.MotherID != nil {
		motherID = sql.NullInt64{Int64: *c.MotherID, Valid: true}
	}
	var screeningDate sql.NullTime
	if c.ScreeningDate != nil {
		screeningDate = sql.NullTime{Time: *c.ScreeningDate, Valid: true}
	}
	_, err := s.db.Exec(
		`UPDATE children SET mother_id = ?, first_name = ?, last_name = ?, birth_date = ?, sex = ?,
		        birth_weight_kg = ?, birth_length_cm = ?, place_of_birth = ?, delivery_type = ?,
		        newborn_screened = ?, screening_date = ?, updated_at = ?
		 WHERE id = ?`,
		motherID, c.FirstName, c.LastName, c.BirthDate, c.Sex, c.BirthWeightKg, c.BirthLengthCm,
		c.PlaceOfBirth, c.DeliveryType, boolInt(c.NewbornScreened), screeningDate, time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update child: %w", err)
	}
	return s.GetByID(id)
}

func (s *ChildStore) Delete(id int64) error {
	result, err := s.db.Exec(`DELETE FROM children WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete child: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
