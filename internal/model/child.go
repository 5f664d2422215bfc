package model

import "time"

type Child struct {
	ID              int64      `json:"id"`
	MotherID        *int64     `json:"mother_id"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	BirthDate       time.Time  `json:"birth_date"`
	Sex             string     `json:"sex"`
	BirthWeightKg   float64    `json:"birth_weight_kg"`
	BirthLengthCm   float64    `json:"birth_length_cm"`
	PlaceOfBirth    string     `json:"place_of_birth"`
	DeliveryType    string     `json:"delivery_type"`
	NewbornScreened bool       `json:"newborn_screened"`
	ScreeningDate   *time.Time `json:"screening_date"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
