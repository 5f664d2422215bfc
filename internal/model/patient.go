package model

import "time"

type Patient struct {
	ID            int64      `json:"id"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	BirthDate     *time.Time `json:"birth_date"`
	Sex           string     `json:"sex"`
	Address       string     `json:"address"`
	ContactNumber string     `json:"contact_number"`
	PhilhealthNo  string     `json:"philhealth_no"`
	BloodType     string     `json:"blood_type"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
