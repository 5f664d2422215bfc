package store

import (
	"testing"

	"github.com/jvillanueva/hilot/internal/model"
)

func TestVaccineStockLedger(t *testing.T) {
	s := NewVaccineStore(setupTestDB(t))

	v, err := s.Create(&model.Vaccine{
		Name:          "Pentavalent",
		DosesRequired: 3,
		IntervalWeeks: 4,
		ReorderLevel:  10,
	})
	if err != nil {
		t.Fatalf("create vaccine: %v", err)
	}
	if v.StockOnHand != 0 {
		t.Errorf("initial stock = %d, want 0", v.StockOnHand)
	}

	if _, err := s.RecordTransaction(&model.VaccineTransaction{
		VaccineID: v.ID, Type: model.VaccineTxReceived, Quantity: 50, BatchNumber: "B-001",
	}); err != nil {
		t.Fatalf("record received: %v", err)
	}
	if _, err := s.RecordTransaction(&model.VaccineTransaction{
		VaccineID: v.ID, Type: model.VaccineTxAdministered, Quantity: 8,
	}); err != nil {
		t.Fatalf("record administered: %v", err)
	}
	if _, err := s.RecordTransaction(&model.VaccineTransaction{
		VaccineID: v.ID, Type: model.VaccineTxExpired, Quantity: 5, BatchNumber: "B-001",
	}); err != nil {
		t.Fatalf("record expired: %v", err)
	}
	if _, err := s.RecordTransaction(&model.VaccineTransaction{
		VaccineID: v.ID, Type: model.VaccineTxAdjustment, Quantity: -2, Remarks: "broken vials",
	}); err != nil {
		t.Fatalf("record adjustment: %v", err)
	}

	got, _ := s.GetByID(v.ID)
	if got.StockOnHand != 35 {
		t.Errorf("stock = %d, want 35", got.StockOnHand)
	}

	txs, err := s.ListTransactions(v.ID, 50)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(txs) != 4 {
		t.Errorf("transactions = %d, want 4", len(txs))
	}
}

func TestVaccineLowStock(t *testing.T) {
	s := NewVaccineStore(setupTestDB(t))

	low, _ := s.Create(&model.Vaccine{Name: "BCG", DosesRequired: 1, ReorderLevel: 20})
	ok, _ := s.Create(&model.Vaccine{Name: "MMR", DosesRequired: 2, ReorderLevel: 5})

	s.RecordTransaction(&model.VaccineTransaction{VaccineID: low.ID, Type: model.VaccineTxReceived, Quantity: 10})
	s.RecordTransaction(&model.VaccineTransaction{VaccineID: ok.ID, Type: model.VaccineTxReceived, Quantity: 40})

	vaccines, err := s.LowStock()
	if err != nil {
		t.Fatalf("low stock: %v", err)
	}
	if len(vaccines) != 1 {
		t.Fatalf("low stock count = %d, want 1", len(vaccines))
	}
	if vaccines[0].ID != low.ID {
		t.Errorf("low stock vaccine = %d, want %d", vaccines[0].ID, low.ID)
	}
}
