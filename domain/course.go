package domain

// Course is the catalog unit shared between the local catalog
// collaborator and the publish subsystem. The publish side treats it as
// an opaque serializable record: only the sequence shape is validated
// at the boundary.
type Course struct {
	Id            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Thumbnail     string     `json:"thumbnail"`
	Instructor    Instructor `json:"instructor"`
	Price         float64    `json:"price"`
	OriginalPrice float64    `json:"originalPrice"`
	Rating        float64    `json:"rating"`
	Students      int64      `json:"students"`
	Views         int64      `json:"views"`
	Category      string     `json:"category"`
	Level         string     `json:"level"`
	Tags          []string   `json:"tags"`
	Modules       []Module   `json:"modules"`
	UpdatedAt     string     `json:"updatedAt"`
}

type Instructor struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
	Bio    string `json:"bio"`
}

type Module struct {
	Id      string   `json:"id"`
	Title   string   `json:"title"`
	Lessons []Lesson `json:"lessons"`
}

type Lesson struct {
	Id       string `json:"id"`
	Title    string `json:"title"`
	Duration string `json:"duration"`
	VideoId  string `json:"videoId"`
	IsFree   bool   `json:"isFree"`
}

// HeroCover holds the homepage hero-section texts. A free-form
// configuration record, not individually validated.
type HeroCover struct {
	BadgeText           string `json:"badgeText,omitempty"`
	HeadlinePrefix      string `json:"headlinePrefix,omitempty"`
	HeadlineHighlight   string `json:"headlineHighlight,omitempty"`
	HeadlineSuffix      string `json:"headlineSuffix,omitempty"`
	Description         string `json:"description,omitempty"`
	PrimaryButtonText   string `json:"primaryButtonText,omitempty"`
	SecondaryButtonText string `json:"secondaryButtonText,omitempty"`
}

func (c Course) Clone() Course {
	cp := c
	cp.Tags = append([]string(nil), c.Tags...)
	if c.Modules != nil {
		cp.Modules = make([]Module, len(c.Modules))
		for i, m := range c.Modules {
			cm := m
			cm.Lessons = append([]Lesson(nil), m.Lessons...)
			cp.Modules[i] = cm
		}
	}
	return cp
}
