package models

import "time"

// Stats aggregates credential counts. ByStatus uses effective status.
type Stats struct {
	Total         int                 `json:"total"`
	ByStatus      map[Status]int      `json:"byStatus"`
	BySubjectType map[SubjectType]int `json:"bySubjectType"`
	GeneratedAt   time.Time           `json:"generatedAt"`
}

// NewStats returns Stats with every known status and type present at zero.
func NewStats(at time.Time) *Stats {
	s := &Stats{
		ByStatus:      make(map[Status]int, len(AllStatuses)),
		BySubjectType: make(map[SubjectType]int, len(AllSubjectTypes)),
		GeneratedAt:   at,
	}
	for _, st := range AllStatuses {
		s.ByStatus[st] = 0
	}
	for _, t := range AllSubjectTypes {
		s.BySubjectType[t] = 0
	}
	return s
}
