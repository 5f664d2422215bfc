package model

import "time"

type Vaccine struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Manufacturer   string    `json:"manufacturer"`
	DosesRequired  int       `json:"doses_required"`
	IntervalWeeks  int       `json:"interval_weeks"`
	MinAgeWeeks    int       `json:"min_age_weeks"`
	StockOnHand    int       `json:"stock_on_hand"`
	ReorderLevel   int       `json:"reorder_level"`
	StorageTempMin float64   `json:"storage_temp_min"`
	StorageTempMax float64   `json:"storage_temp_max"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type VaccineTransactionType string

const (
	VaccineTxReceived     VaccineTransactionType = "received"
	VaccineTxAdministered VaccineTransactionType = "administered"
	VaccineTxExpired      VaccineTransactionType = "expired"
	VaccineTxAdjustment   VaccineTransactionType = "adjustment"
)

type VaccineTransaction struct {
	ID          int64                  `json:"id"`
	VaccineID   int64                  `json:"vaccine_id"`
	Type        VaccineTransactionType `json:"type"`
	Quantity    int                    `json:"quantity"`
	BatchNumber string                 `json:"batch_number"`
	ExpiryDate  *time.Time             `json:"expiry_date"`
	Remarks     string                 `json:"remarks"`
	RecordedBy  *int64                 `json:"recorded_by"`
	CreatedAt   time.Time              `json:"created_at"`
}
