package models

// TimesheetRow is the flattened projection of one timesheet record.
// Missing text fields are "" and never omitted.
type TimesheetRow struct {
	Date      string  `json:"date"`
	Project   string  `json:"project"`
	StartTime string  `json:"startTime"`
	EndTime   string  `json:"endTime"`
	Person    string  `json:"person"`
	Hours     float64 `json:"hours"`
}

// TimesheetQuery holds the optional filters of a timesheet lookup.
// Dates are YYYY-MM-DD and inclusive.
type TimesheetQuery struct {
	StartDate string
	EndDate   string
	Person    string
}

// FieldMap names the timesheet columns. Person lists candidate column names;
// the first one that holds a value in a record wins.
type FieldMap struct {
	Date      string
	Project   string
	StartTime string
	EndTime   string
	Hours     string
	Person    []string
}

// DefaultFieldMap returns the column names used when none are configured.
func DefaultFieldMap() FieldMap {
	return FieldMap{
		Date:      "Date",
		Project:   "Project",
		StartTime: "Start Time",
		EndTime:   "End Time",
		Hours:     "Hours",
		Person:    []string{"Person"},
	}
}
