package experiments

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"

	"github.com/haasonsaas/llmexperiment/pkg/models"
)

// Participant is a simulated subject. It is immutable after construction.
type Participant struct {
	id          string
	name        string
	gender      string
	assignments []Assignment
}

var _ models.Subject = (*Participant)(nil)

// NewParticipant creates a participant.
func NewParticipant(id, name, gender string, assignments ...Assignment) *Participant {
	return &Participant{
		id:          id,
		name:        name,
		gender:      gender,
		assignments: slices.Clone(assignments),
	}
}

func (p *Participant) ID() string     { return p.id }
func (p *Participant) Name() string   { return p.name }
func (p *Participant) Gender() string { return p.gender }

// Assignments returns a copy of the participant's assignments.
func (p *Participant) Assignments() []Assignment {
	return slices.Clone(p.assignments)
}

// InExperiment reports whether any assignment references experimentID.
func (p *Participant) InExperiment(experimentID string) bool {
	return slices.ContainsFunc(p.assignments, func(a Assignment) bool {
		return a.ExperimentID == experimentID
	})
}

// InCondition reports whether any assignment references conditionID,
// whichever experiment it belongs to.
func (p *Participant) InCondition(conditionID string) bool {
	return slices.ContainsFunc(p.assignments, func(a Assignment) bool {
		return a.ConditionID == conditionID
	})
}

// Metadata implements models.Describable.
func (p *Participant) Metadata() models.Record {
	r := models.NewRecord()
	r.Set("participant_id", models.Present(p.id))
	if p.gender != "" {
		r.Set("participant_gender", models.Present(p.gender))
	} else {
		r.Set("participant_gender", models.Absent(nil))
	}
	return r
}

// String returns the courtesy-titled label substituted for {{subject}}.
func (p *Participant) String() string {
	name := p.name
	if name == "" {
		name = p.id
	}
	title := "Ms."
	if cases.Fold().String(strings.TrimSpace(p.gender)) == "male" {
		title = "Mr."
	}
	return title + " " + name
}
