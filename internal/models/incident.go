package models

import "time"

// IncidentType enumerates every kind of append-only audit entry the core
// writes. See §6.
type IncidentType string

const (
	IncidentModeChange        IncidentType = "MODE_CHANGE"
	IncidentEnvironmentChange IncidentType = "ENVIRONMENT_CHANGE"
	IncidentAutomationChange  IncidentType = "AUTOMATION_CHANGE"
	IncidentProfileChange     IncidentType = "PROFILE_CHANGE"
	IncidentTradeRejected     IncidentType = "TRADE_REJECTED"
	IncidentAutoPause         IncidentType = "AUTO_PAUSE"
	IncidentEmergencyPause    IncidentType = "EMERGENCY_PAUSE"
	IncidentEmergencyStopAll  IncidentType = "EMERGENCY_STOP_ALL"
	IncidentExecutionError    IncidentType = "EXECUTION_ERROR"
	IncidentAPIError          IncidentType = "API_ERROR"
	IncidentSystemInit        IncidentType = "SYSTEM_INIT"
)

// Severity is the operator-facing urgency of an Incident.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Incident is an append-only audit entry. Incidents are never mutated
// except for the Resolved flag, and never deleted.
type Incident struct {
	ID         int64
	ModelID    *int64 // nil for system-wide incidents
	Type       IncidentType
	Severity   Severity
	Message    string
	Details    map[string]any
	Resolved   bool
	Timestamp  time.Time
}
