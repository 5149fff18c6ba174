package brief

import (
	"math"
	"sort"
	"time"

	"nexus/internal/model"
)

const recentActivityLimit = 10

type MilestoneMetric struct {
	Title      string     `json:"title"`
	Completion int        `json:"completion"`
	Status     string     `json:"status"`
	DueDate    *time.Time `json:"dueDate,omitempty"`
	Overdue    bool       `json:"overdue"`
}

type ActivitySummary struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

// Metrics is the project snapshot handed to the model.
type Metrics struct {
	ProjectName       string            `json:"projectName"`
	Status            string            `json:"status"`
	Priority          string            `json:"priority"`
	TotalTasks        int               `json:"totalTasks"`
	CompletedTasks    int               `json:"completedTasks"`
	CompletionPercent int               `json:"completionPercent"`
	OverdueTasks      int               `json:"overdueTasks"`
	BlockedTasks      int               `json:"blockedTasks"`
	StatusBreakdown   map[string]int    `json:"statusBreakdown"`
	PriorityBreakdown map[string]int    `json:"priorityBreakdown"`
	Workload          map[string]int    `json:"workload"`
	Milestones        []MilestoneMetric `json:"milestones"`
	DaysRemaining     *int              `json:"daysRemaining,omitempty"`
	RecentActivity    []ActivitySummary `json:"recentActivity"`
}

// ComputeMetrics summarises p as of now. Workload counts open tasks per member.
func ComputeMetrics(p *model.Project, now time.Time) Metrics {
	m := Metrics{
		ProjectName:       p.Name,
		Status:            p.Status,
		Priority:          p.Priority,
		TotalTasks:        len(p.Tasks),
		StatusBreakdown:   map[string]int{},
		PriorityBreakdown: map[string]int{},
		Workload:          map[string]int{},
		Milestones:        []MilestoneMetric{},
		RecentActivity:    []ActivitySummary{},
	}

	for i := range p.Tasks {
		t := &p.Tasks[i]
		m.StatusBreakdown[t.Status]++
		m.PriorityBreakdown[t.Priority]++
		switch t.Status {
		case model.TaskDone:
			m.CompletedTasks++
		case model.TaskBlocked:
			m.BlockedTasks++
		}
		if !t.IsOpen() {
			continue
		}
		if t.DueDate != nil && t.DueDate.Before(now) {
			m.OverdueTasks++
		}
		members := t.TaskMembers
		if len(members) == 0 && t.Assignee != "" {
			members = []string{t.Assignee}
		}
		for _, member := range members {
			m.Workload[member]++
		}
	}
	if m.TotalTasks > 0 {
		m.CompletionPercent = int(math.Round(float64(m.CompletedTasks) * 100 / float64(m.TotalTasks)))
	}

	p.RefreshCompletion()
	for _, ms := range p.Milestones {
		m.Milestones = append(m.Milestones, MilestoneMetric{
			Title:      ms.Title,
			Completion: ms.Completion,
			Status:     ms.Status,
			DueDate:    ms.DueDate,
			Overdue:    ms.DueDate != nil && ms.DueDate.Before(now) && ms.Status != model.MilestoneCompleted,
		})
	}

	if p.EndDate != nil {
		days := int(math.Ceil(p.EndDate.Sub(now).Hours() / 24))
		m.DaysRemaining = &days
	}

	activity := make([]model.GitHubActivity, len(p.GitHubActivity))
	copy(activity, p.GitHubActivity)
	sort.SliceStable(activity, func(i, j int) bool {
		return activity[i].Timestamp.After(activity[j].Timestamp)
	})
	for i, a := range activity {
		if i == recentActivityLimit {
			break
		}
		m.RecentActivity = append(m.RecentActivity, ActivitySummary{
			Type:      a.Type,
			Message:   a.Message,
			Author:    a.Author,
			Timestamp: a.Timestamp,
		})
	}
	return m
}
