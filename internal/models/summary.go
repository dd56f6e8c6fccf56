package models

// YearCount reports how many records a successfully fetched year produced.
// A year with no data (404 upstream) still appears with Count 0.
type YearCount struct {
	Year  int `json:"year"`
	Count int `json:"count"`
}

// YearError records a year whose fetch failed. The run continues without it.
type YearError struct {
	Year  int    `json:"year"`
	Error string `json:"error"`
}

// RunSummary is the response body of one refresh run.
type RunSummary struct {
	YearsProcessed []YearCount `json:"years_processed"`
	TotalInserted  int         `json:"total_inserted"`
	Errors         []YearError `json:"errors"`
}

// NewRunSummary returns an empty summary with non-nil slices so the JSON
// response always carries arrays, never null.
func NewRunSummary() RunSummary {
	return RunSummary{
		YearsProcessed: []YearCount{},
		Errors:         []YearError{},
	}
}

func (s *RunSummary) AddYear(year, count int) {
	s.YearsProcessed = append(s.YearsProcessed, YearCount{Year: year, Count: count})
}

func (s *RunSummary) AddError(year int, msg string) {
	s.Errors = append(s.Errors, YearError{Year: year, Error: msg})
}
