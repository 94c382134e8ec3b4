package model

import "strings"

// Unspecified is the sentinel filled in wherever the chat provider leaves an
// attendee or task field out of its free-form JSON response.
const Unspecified = "unspecified"

type Attendee struct {
	Name     string `json:"name"`
	Position string `json:"position"`
	Role     string `json:"role"`
}

type Task struct {
	Responsible string `json:"responsible"`
	Date        string `json:"date"`
	Description string `json:"description"`
}

// Minutes is the structured meeting-summary document produced by one writer
// chain invocation. A refinement round always yields a new Minutes value;
// an existing snapshot is never patched in place.
type Minutes struct {
	Title       string     `json:"title"`
	Date        string     `json:"date"`
	Attendees   []Attendee `json:"attendees"`
	Summary     string     `json:"summary"`
	Takeaways   []string   `json:"takeaways"`
	Conclusions []string   `json:"conclusions"`
	NextMeeting []string   `json:"next_meeting"`
	Tasks       []Task     `json:"tasks"`
	Message     string     `json:"message"`
}

// Normalize fills the documented defaults for fields the provider omitted:
// arrays become empty rather than nil and blank attendee/task fields get the
// Unspecified sentinel. It returns the receiver's normalized copy.
func (m Minutes) Normalize() Minutes {
	if m.Attendees == nil {
		m.Attendees = []Attendee{}
	}
	if m.Takeaways == nil {
		m.Takeaways = []string{}
	}
	if m.Conclusions == nil {
		m.Conclusions = []string{}
	}
	if m.NextMeeting == nil {
		m.NextMeeting = []string{}
	}
	if m.Tasks == nil {
		m.Tasks = []Task{}
	}

	for i, attendee := range m.Attendees {
		m.Attendees[i] = Attendee{
			Name:     orUnspecified(attendee.Name),
			Position: orUnspecified(attendee.Position),
			Role:     orUnspecified(attendee.Role),
		}
	}
	for i, task := range m.Tasks {
		m.Tasks[i] = Task{
			Responsible: orUnspecified(task.Responsible),
			Date:        orUnspecified(task.Date),
			Description: orUnspecified(task.Description),
		}
	}

	return m
}

func orUnspecified(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, "none") {
		return Unspecified
	}
	return value
}
