package models

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	MaxUsernameLength = 64
	MaxEmailLength    = 120
	MaxAboutMeLength  = 140
)

// User is rendered publicly without Email; account responses add it back.
type User struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Username     string    `json:"username" gorm:"size:64;uniqueIndex;not null"`
	Email        string    `json:"-" gorm:"size:120;uniqueIndex;not null"`
	PasswordHash string    `json:"-" gorm:"size:256;not null"`
	AboutMe      string    `json:"about_me" gorm:"size:140"`
	LastSeen     time.Time `json:"last_seen"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Follow is a directed edge of the social graph: FollowerID sees the posts of
// FollowedID. The composite primary key allows at most one edge per pair.
type Follow struct {
	FollowerID uint      `json:"follower_id" gorm:"primaryKey;autoIncrement:false"`
	FollowedID uint      `json:"followed_id" gorm:"primaryKey;autoIncrement:false;index"`
	CreatedAt  time.Time `json:"created_at"`

	Follower User `json:"-" gorm:"foreignKey:FollowerID;constraint:OnDelete:CASCADE"`
	Followed User `json:"-" gorm:"foreignKey:FollowedID;constraint:OnDelete:CASCADE"`
}

func (User) TableName() string {
	return "users"
}

func (Follow) TableName() string {
	return "followers"
}

// AvatarURL returns the Gravatar identicon for the user's email.
func (u *User) AvatarURL(size int) string {
	digest := md5.Sum([]byte(strings.ToLower(u.Email)))
	return fmt.Sprintf("https://www.gravatar.com/avatar/%s?d=identicon&s=%d", hex.EncodeToString(digest[:]), size)
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.LastSeen.IsZero() {
		u.LastSeen = time.Now().UTC()
	}
	return nil
}
