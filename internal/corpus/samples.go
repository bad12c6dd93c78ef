package corpus

import (
	"fmt"
	"os"
	"path/filepath"
)

// SampleDeviations returns the built-in incident-sample documents.
func SampleDeviations() []File {
	out := make([]File, len(sampleReports))
	for i, text := range sampleReports {
		out[i] = File{SourceID: fmt.Sprintf("sample_deviation_%d.txt", i+1), Text: text}
	}
	return out
}

// EnsureSamples writes the built-in samples into dir when it holds no text files yet.
// It returns the number of files written.
func EnsureSamples(dir string) (int, error) {
	existing, err := List(dir, []string{".txt"})
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create sample dir: %w", err)
	}
	samples := SampleDeviations()
	for _, s := range samples {
		if err := os.WriteFile(filepath.Join(dir, s.SourceID), []byte(s.Text), 0o644); err != nil {
			return 0, fmt.Errorf("write %s: %w", s.SourceID, err)
		}
	}
	return len(samples), nil
}

var sampleReports = []string{
	`CRITICAL DEVIATION REPORT: TEMPERATURE EXCURSION IN API STORAGE

Deviation ID: DEV-2024-001
Severity: CRITICAL
Category: Environmental/Storage

Incident: Temperature excursion detected in raw material storage area RM-05.
The environmental monitoring system recorded temperatures of 12°C for 4 hours
against the required storage condition of 2-8°C for hygroscopic materials.

Affected Materials:
- Batch #MAT-567 of Active Pharmaceutical Ingredient (Stability compromised)
- Batch #EXC-890 of critical excipient

Root Cause: HVAC system malfunction combined with operator failure to acknowledge alarm.
Immediate Impact: Potential product quality impact requiring stability testing.

CAPA:
- Immediate quarantine of affected materials
- HVAC system maintenance and calibration
- Operator retraining on alarm response procedures
- Enhanced environmental monitoring frequency

Regulatory Impact: Potential FDA 483 observation for inadequate controls.
`,
	`MAJOR DEVIATION REPORT: COMPRESSION MACHINE FAILURE

Deviation ID: DEV-2024-002
Severity: MAJOR
Category: Equipment/Manufacturing

Incident: Compression machine CM-02 showed 8% deviation from calibrated pressure settings
during routine performance qualification. This affected tablet hardness uniformity.

Affected Batch: Batch #TAB-456 showed 15% out-of-specification tablets
Batch Status: ON HOLD pending investigation

Root Cause: Inadequate preventive maintenance schedule and calibration drift.
Impact: Product quality impacted, potential batch rejection.

CAPA:
- Revised preventive maintenance schedule
- Enhanced calibration frequency from monthly to weekly
- Operator training on equipment monitoring
- Implementation of real-time pressure monitoring

Training Required: Equipment operation and monitoring for all operators.
`,
	`TREND ANALYSIS: DOCUMENTATION ERRORS

Deviation ID: DEV-2024-003
Severity: MINOR (but recurring pattern)
Category: Documentation/Training

Incident: Multiple documentation errors found in batch manufacturing records
over past 30 days. Missing signatures and incomplete entries in 5 different batches.

Pattern: Recurring issue across multiple operators
Root Cause: Inadequate training on Good Documentation Practices (GDP)

Affected Departments:
- Manufacturing operators
- Quality control reviewers
- Batch release team

Trend: This is the 3rd similar deviation in 45 days indicating systematic training gap.

CAPA:
- Comprehensive GDP training for all personnel
- Implementation of electronic batch records
- Enhanced supervisory review process
- Monthly documentation audits

Regulatory Reference: FDA 21 CFR 211.100 and 211.192
`,
	`DEVIATION REPORT: ENVIRONMENTAL MONITORING FAILURE

Deviation ID: DEV-2024-004
Severity: MAJOR
Category: Environmental/Quality Control

Incident: Environmental monitoring in Grade C area showed particle count exceedance
during aseptic filling operation. Count reached 352,000 particles vs limit of 350,000.

Impact: Potential impact on product sterility assurance
Batch Status: Quarantined for additional testing

Root Cause: HVAC filter maintenance overdue and improper gowning procedure
Immediate Actions: Stop manufacturing in affected area, enhanced cleaning

CAPA:
- HVAC filter replacement and validation
- Gowning qualification for all operators
- Increased environmental monitoring points
- Revised cleaning validation protocol
`,
}
