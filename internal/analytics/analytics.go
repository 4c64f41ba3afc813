package analytics

import (
	"sort"
	"time"

	"crowdmod/internal/modules/audit"
)

type Source interface {
	Records() ([]audit.Record, error)
}

type Service struct {
	source Source
}

func New(source Source) *Service {
	return &Service{source: source}
}

type UserCount struct {
	UserID string `json:"user_id"`
	Count  int    `json:"count"`
}

type Report struct {
	Total    int            `json:"total"`
	Muted    int            `json:"muted"`
	ByReason map[string]int `json:"by_reason"`
	TopMuted []UserCount    `json:"top_muted"`
}

// Report aggregates journal rows created at or after since.
func (s *Service) Report(since time.Time, top int) (Report, error) {
	records, err := s.source.Records()
	if err != nil {
		return Report{}, err
	}
	return Build(records, since, top), nil
}

func Build(records []audit.Record, since time.Time, top int) Report {
	report := Report{ByReason: make(map[string]int)}
	perUser := make(map[string]int)
	for _, rec := range records {
		if rec.CreatedAt.Before(since) {
			continue
		}
		report.Total++
		report.ByReason[string(rec.Reason)]++
		report.Muted += len(rec.Muted)
		for _, id := range rec.Muted {
			perUser[id]++
		}
	}

	for id, count := range perUser {
		report.TopMuted = append(report.TopMuted, UserCount{UserID: id, Count: count})
	}
	sort.Slice(report.TopMuted, func(i, j int) bool {
		if report.TopMuted[i].Count != report.TopMuted[j].Count {
			return report.TopMuted[i].Count > report.TopMuted[j].Count
		}
		return report.TopMuted[i].UserID < report.TopMuted[j].UserID
	})
	if top > 0 && len(report.TopMuted) > top {
		report.TopMuted = report.TopMuted[:top]
	}
	return report
}
