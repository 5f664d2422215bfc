package backup

import (
	"fmt"
	"sort"
	"strings"
)

// Module tags scope selective backup and restore. The set is closed: every
// tag maps to the tables that hold that module's data, and this mapping is
// the single source of truth consulted by both the dumper and the selective
// restore filter.
const (
	ModulePatientRecords      = "patient_records"
	ModulePrenatalMonitoring  = "prenatal_monitoring"
	ModuleChildRecords        = "child_records"
	ModuleImmunizationRecords = "immunization_records"
	ModuleVaccineManagement   = "vaccine_management"
)

var moduleTables = map[string][]string{
	ModulePatientRecords:      {"patients"},
	ModulePrenatalMonitoring:  {"prenatal_records", "prenatal_checkups"},
	ModuleChildRecords:        {"children"},
	ModuleImmunizationRecords: {"immunizations"},
	ModuleVaccineManagement:   {"vaccines", "vaccine_transactions"},
}

var moduleDisplayNames = map[string]string{
	ModulePatientRecords:      "Patient Records",
	ModulePrenatalMonitoring:  "Prenatal Monitoring",
	ModuleChildRecords:        "Child Records",
	ModuleImmunizationRecords: "Immunization Records",
	ModuleVaccineManagement:   "Vaccine Management",
}

// AllModules returns every recognized module tag, sorted.
func AllModules() []string {
	tags := make([]string, 0, len(moduleTables))
	for tag := range moduleTables {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// ValidModule reports whether tag is a recognized module.
func ValidModule(tag string) bool {
	_, ok := moduleTables[tag]
	return ok
}

// ValidateModules checks that modules is non-empty, contains only recognized
// tags, and returns a sorted, de-duplicated copy.
func ValidateModules(modules []string) ([]string, error) {
	if len(modules) == 0 {
		return nil, &ValidationError{Field: "modules", Message: "at least one module must be selected"}
	}
	seen := make(map[string]struct{}, len(modules))
	var out []string
	for _, tag := range modules {
		tag = strings.TrimSpace(tag)
		if !ValidModule(tag) {
			return nil, &ValidationError{Field: "modules", Message: fmt.Sprintf("unknown module %q", tag)}
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out, nil
}

// IsFullSet reports whether modules covers every recognized module.
func IsFullSet(modules []string) bool {
	if len(modules) != len(moduleTables) {
		return false
	}
	for _, tag := range modules {
		if !ValidModule(tag) {
			return false
		}
	}
	return true
}

// TablesFor returns the union of tables belonging to the given modules,
// in a stable order.
func TablesFor(modules []string) []string {
	seen := make(map[string]struct{})
	var tables []string
	for _, tag := range AllModules() {
		selected := false
		for _, m := range modules {
			if m == tag {
				selected = true
				break
			}
		}
		if !selected {
			continue
		}
		for _, t := range moduleTables[tag] {
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			tables = append(tables, t)
		}
	}
	return tables
}

// DisplayName returns the human-readable name for a module tag.
func DisplayName(tag string) string {
	if name, ok := moduleDisplayNames[tag]; ok {
		return name
	}
	return tag
}

// DisplayNames maps a list of tags to their human-readable names.
func DisplayNames(modules []string) []string {
	names := make([]string, 0, len(modules))
	for _, tag := range modules {
		names = append(names, DisplayName(tag))
	}
	return names
}
