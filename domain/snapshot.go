package domain

import "time"

// Snapshot is the published record kept in mongo. The token is the sole
// lookup key and the only access credential, for reads and overwrites
// alike. Payload content lives in the object store under PayloadKey.
type Snapshot struct {
	Token            string `json:"token" bson:"_id"`
	Enabled          bool   `json:"enabled" bson:"enabled"`
	PayloadKey       string `json:"payloadKey" bson:"payloadKey"`
	Size             int64  `json:"size" bson:"size"`
	UpdatedTimestamp int64  `json:"updatedTimestamp" bson:"updatedTimestamp"`
}

func (s Snapshot) UpdatedAt() time.Time {
	return time.Unix(s.UpdatedTimestamp, 0)
}

// SharedPayload is the full catalog state taken at publish time:
// courses, hero cover texts and the category labels the courses
// reference. It is both the stored payload format and the resolve
// response body; UpdatedAt is set by the resolver only.
type SharedPayload struct {
	Courses    []Course  `json:"courses"`
	HeroCover  HeroCover `json:"heroCover"`
	Categories []string  `json:"categories"`
	UpdatedAt  time.Time `json:"updatedAt,omitzero"`
}

// Clone returns a deep copy, so holders of a fetched snapshot can hand
// it out without local mutations ever reaching the original.
func (p SharedPayload) Clone() SharedPayload {
	cp := p
	if p.Categories != nil {
		cp.Categories = append([]string{}, p.Categories...)
	}
	if p.Courses != nil {
		cp.Courses = make([]Course, len(p.Courses))
		for i, c := range p.Courses {
			cp.Courses[i] = c.Clone()
		}
	}
	return cp
}
