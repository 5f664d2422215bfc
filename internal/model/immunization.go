package model

import "time"

type Immunization struct {
	ID             int64      `json:"id"`
	ChildID        int64      `json:"child_id"`
	VaccineID      int64      `json:"vaccine_id"`
	DoseNumber     int        `json:"dose_number"`
	DateGiven      time.Time  `json:"date_given"`
	AdministeredBy *int64     `json:"administered_by"`
	BatchNumber    string     `json:"batch_number"`
	Remarks        string     `json:"remarks"`
	NextDoseDate   *time.Time `json:"next_dose_date"`
	CreatedAt      time.Time  `json:"created_at"`
}
