package capture

import "time"

// Patch is a partial update to a record. Stores apply patches field by field
// so concurrent writers never clobber each other's fields.
type Patch struct {
	Status         *Status
	Perception     *Perception
	Classification *Classification
	AppendActions  []ActionOutcome
	Enrichment     map[string]AgentResult
	Timeline       map[string]time.Time
}

func (p Patch) Empty() bool {
	return p.Status == nil && p.Perception == nil && p.Classification == nil &&
		len(p.AppendActions) == 0 && len(p.Enrichment) == 0 && len(p.Timeline) == 0
}

// WithStatus sets the target status.
func (p Patch) WithStatus(s Status) Patch {
	p.Status = &s
	return p
}

// Mark adds a timeline entry.
func (p Patch) Mark(stage string, at time.Time) Patch {
	if p.Timeline == nil {
		p.Timeline = map[string]time.Time{}
	}
	p.Timeline[stage] = at
	return p
}

// Apply merges p into r:
//   - perception and classification are write-once
//   - status only moves forward (CanTransition)
//   - actions are appended
//   - enrichment entries are overwritten per key
//   - existing timeline entries are never replaced
//
// It reports whether anything changed.
func Apply(r *Record, p Patch, now time.Time) bool {
	changed := false
	if p.Status != nil && CanTransition(r.Status, *p.Status) {
		r.Status = *p.Status
		changed = true
	}
	if p.Perception != nil && r.Perception == nil {
		v := *p.Perception
		r.Perception = &v
		changed = true
	}
	if p.Classification != nil && r.Classification == nil {
		v := *p.Classification
		r.Classification = &v
		changed = true
	}
	if len(p.AppendActions) > 0 {
		r.Actions = append(r.Actions, p.AppendActions...)
		changed = true
	}
	if len(p.Enrichment) > 0 {
		if r.Enrichment == nil {
			r.Enrichment = map[string]AgentResult{}
		}
		for k, v := range p.Enrichment {
			r.Enrichment[k] = v
		}
		changed = true
	}
	for k, v := range p.Timeline {
		if r.Timeline == nil {
			r.Timeline = map[string]time.Time{}
		}
		if _, ok := r.Timeline[k]; ok {
			continue
		}
		r.Timeline[k] = v
		changed = true
	}
	if changed {
		r.UpdatedAt = now
	}
	return changed
}
