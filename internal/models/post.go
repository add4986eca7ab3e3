package models

import (
	"time"
	"unicode/utf8"

	"gorm.io/gorm"
)

const MaxPostLength = 140

type Post struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Body      string    `json:"body" gorm:"size:140;not null"`
	Timestamp time.Time `json:"timestamp" gorm:"index;not null"`
	UserID    uint      `json:"user_id" gorm:"index;not null"`

	Author *User `json:"author,omitempty" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

func (Post) TableName() string {
	return "posts"
}

// ValidBody reports whether body fits the post column.
func ValidBody(body string) bool {
	n := utf8.RuneCountInString(body)
	return n > 0 && n <= MaxPostLength
}

// BeforeCreate stamps posts created without an explicit timestamp.
func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now().UTC().Truncate(time.Microsecond)
	}
	return nil
}
