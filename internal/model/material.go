package model

// SubjectMaterial is the relational copy of reference text for a subject.
// Lookup is by exact subject match.
type SubjectMaterial struct {
	BaseModel
	Subject string `gorm:"size:200;index;not null" json:"subject"`
	Content string `gorm:"not null" json:"content"`
	Source  string `gorm:"size:255" json:"source"`
}
