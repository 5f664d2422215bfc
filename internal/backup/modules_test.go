package backup

import (
	"errors"
	"reflect"
	"testing"
)

func TestValidateModules(t *testing.T) {
	got, err := ValidateModules([]string{"vaccine_management", "child_records", "child_records"})
	if err != nil {
		t.Fatalf("validate modules: %v", err)
	}
	want := []string{"child_records", "vaccine_management"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("modules = %v, want %v", got, want)
	}
}

func TestValidateModulesEmpty(t *testing.T) {
	_, err := ValidateModules(nil)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestValidateModulesUnknown(t *testing.T) {
	_, err := ValidateModules([]string{"patient_records", "dental_records"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestIsFullSet(t *testing.T) {
	if !IsFullSet(AllModules()) {
		t.Error("AllModules should be a full set")
	}
	if IsFullSet([]string{ModulePatientRecords}) {
		t.Error("single module should not be a full set")
	}
	if IsFullSet([]string{"a", "b", "c", "d", "e"}) {
		t.Error("five unknown tags should not be a full set")
	}
}

func TestTablesFor(t *testing.T) {
	got := TablesFor([]string{ModuleVaccineManagement, ModulePrenatalMonitoring})
	want := []string{"prenatal_records", "prenatal_checkups", "vaccines", "vaccine_transactions"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("tables = %v, want %v", got, want)
	}
}

func TestDisplayNames(t *testing.T) {
	got := DisplayNames([]string{ModuleChildRecords, ModuleImmunizationRecords})
	want := []string{"Child Records", "Immunization Records"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("names = %v, want %v", got, want)
	}
}
