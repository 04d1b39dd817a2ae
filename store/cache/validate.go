package cache

import (
	"encoding/json"
	"fmt"
)

// ValidationReport is the outcome of a read-time record check.
type ValidationReport struct {
	Valid         bool     `json:"valid"`
	Errors        []string `json:"errors,omitempty"`
	SchemaVersion int      `json:"schemaVersion"`
}

type recordEnvelope struct {
	CompanyName string `json:"companyName"`
	Name        string `json:"name"`
	Metadata    struct {
		SchemaVersion int      `json:"schemaVersion"`
		Sources       []string `json:"sources"`
	} `json:"metadata"`
}

// ValidateCompanyRecord checks a cached company payload before it is served.
// A failing report should be followed by DeleteFromAllSources on the key.
func (s *Service) ValidateCompanyRecord(payload []byte) *ValidationReport {
	return s.validateRecord(payload, true)
}

// ValidatePersonRecord checks a cached person payload before it is served.
func (s *Service) ValidatePersonRecord(payload []byte) *ValidationReport {
	return s.validateRecord(payload, false)
}

func (s *Service) validateRecord(payload []byte, company bool) *ValidationReport {
	report := &ValidationReport{Valid: true, SchemaVersion: s.version}

	var env recordEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		report.Valid = false
		report.Errors = append(report.Errors, "payload is not a valid record: "+err.Error())
		return report
	}

	if company && env.CompanyName == "" {
		report.Valid = false
		report.Errors = append(report.Errors, "missing companyName")
	}
	if !company && env.Name == "" {
		report.Valid = false
		report.Errors = append(report.Errors, "missing name")
	}
	if env.Metadata.SchemaVersion != s.version {
		report.Valid = false
		report.Errors = append(report.Errors,
			fmt.Sprintf("schema version %d does not match current %d", env.Metadata.SchemaVersion, s.version))
	}
	if len(env.Metadata.Sources) == 0 {
		report.Valid = false
		report.Errors = append(report.Errors, "record carries no sources")
	}
	return report
}
