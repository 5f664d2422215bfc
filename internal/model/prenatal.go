package model

import "time"

type PrenatalRecord struct {
	ID                int64      `json:"id"`
	PatientID         int64      `json:"patient_id"`
	Gravida           int        `json:"gravida"`
	Para              int        `json:"para"`
	LastMenstrualDate *time.Time `json:"last_menstrual_date"`
	ExpectedDelivery  *time.Time `json:"expected_delivery"`
	RiskLevel         string     `json:"risk_level"`
	Notes             string     `json:"notes"`
	Active            bool       `json:"active"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

type PrenatalCheckup struct {
	ID             int64      `json:"id"`
	PrenatalID     int64      `json:"prenatal_id"`
	CheckupDate    time.Time  `json:"checkup_date"`
	WeeksGestation int        `json:"weeks_gestation"`
	WeightKg       float64    `json:"weight_kg"`
	BloodPressure  string     `json:"blood_pressure"`
	FundalHeightCm float64    `json:"fundal_height_cm"`
	FetalHeartRate int        `json:"fetal_heart_rate"`
	Findings       string     `json:"findings"`
	NextVisit      *time.Time `json:"next_visit"`
	RecordedBy     *int64     `json:"recorded_by"`
	CreatedAt      time.Time  `json:"created_at"`
}
