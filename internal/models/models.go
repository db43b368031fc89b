package models

import "time"

// ReceiverKind 标识消息的接收方是用户还是群组。
type ReceiverKind string

const (
	ReceiverUser  ReceiverKind = "user"
	ReceiverGroup ReceiverKind = "group"
)

type User struct {
	ID              uint   `gorm:"primaryKey"`
	Name            string `gorm:"size:64;not null"`
	Email           string `gorm:"uniqueIndex;size:128;not null"`
	PhoneNumber     string `gorm:"size:32"`
	PasswordHash    string `gorm:"not null"`
	Bio             string `gorm:"size:512"`
	ProfilePicture  string `gorm:"size:256"`
	Address         string `gorm:"size:256"`
	ThemePreference string `gorm:"size:16;default:system_default"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Message 的附件、投票、名片都以子表行的形式挂在消息下。
type Message struct {
	ID           uint         `gorm:"primaryKey"`
	SenderID     uint         `gorm:"index;not null"`
	ReceiverID   uint         `gorm:"index;not null"`
	ReceiverKind ReceiverKind `gorm:"size:8;not null;default:user"`
	Body         string       `gorm:"type:text"`
	Deleted      bool         `gorm:"not null;default:false"`
	SentAt       time.Time    `gorm:"index;not null"`
	Photos       []Photo
	Documents    []Document
	Polls        []Poll
	Contacts     []SharedContact
	UpdatedAt    time.Time
}

type Photo struct {
	ID        uint   `gorm:"primaryKey"`
	MessageID uint   `gorm:"index;not null"`
	FileName  string `gorm:"size:256"`
	FileSize  int64
	URL       string `gorm:"size:256;not null"`
	CreatedAt time.Time
}

type Document struct {
	ID        uint   `gorm:"primaryKey"`
	MessageID uint   `gorm:"index;not null"`
	Name      string `gorm:"size:256"`
	Type      string `gorm:"size:128"`
	Size      int64
	URI       string `gorm:"size:256;not null"`
	CreatedAt time.Time
}

type Poll struct {
	ID        uint   `gorm:"primaryKey"`
	MessageID uint   `gorm:"index;not null"`
	Question  string `gorm:"size:512;not null"`
	CreatedBy uint
	ExpiresAt *time.Time
	Options   []PollOption
	CreatedAt time.Time
}

type PollOption struct {
	ID     uint   `gorm:"primaryKey"`
	PollID uint   `gorm:"index;not null"`
	Option string `gorm:"size:256;not null"`
	Votes  int    `gorm:"not null;default:0"`
}

// SharedContact 是在消息里分享出去的名片，区别于通讯录的 Contact。
type SharedContact struct {
	ID             uint   `gorm:"primaryKey"`
	MessageID      uint   `gorm:"index;not null"`
	Name           string `gorm:"size:128"`
	Email          string `gorm:"size:128"`
	PhoneNumber    string `gorm:"size:32"`
	ProfilePicture string `gorm:"size:256"`
	Address        string `gorm:"size:256"`
	Latitude       float64
	Longitude      float64
	SharedAt       time.Time
}

type Group struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:128;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type GroupMember struct {
	ID       uint `gorm:"primaryKey"`
	GroupID  uint `gorm:"index:idx_group_member,unique;not null"`
	UserID   uint `gorm:"index:idx_group_member,unique;not null"`
	JoinedAt time.Time
}

// GroupMessage 维护群消息的有序关联，顺序由自增主键决定。
type GroupMessage struct {
	ID        uint `gorm:"primaryKey"`
	GroupID   uint `gorm:"index:idx_group_msg,unique;not null"`
	MessageID uint `gorm:"index:idx_group_msg,unique;not null"`
	CreatedAt time.Time
}

type Story struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"index;not null"`
	Caption   string `gorm:"size:512"`
	Text      string `gorm:"type:text"`
	Media     []StoryMedia
	ExpiresAt time.Time `gorm:"index;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type StoryMedia struct {
	ID      uint   `gorm:"primaryKey"`
	StoryID uint   `gorm:"index;not null"`
	URL     string `gorm:"size:256;not null"`
	Type    string `gorm:"size:8;not null"` // image | video
}

// StoryViewer 每个观看者一行，story+viewer 唯一约束保证重复观看不重复计数。
type StoryViewer struct {
	ID       uint `gorm:"primaryKey"`
	StoryID  uint `gorm:"index:idx_story_viewer,unique;not null"`
	ViewerID uint `gorm:"index:idx_story_viewer,unique;not null"`
	ViewedAt time.Time
}

// Contact 是用户自己保存的通讯录条目。
type Contact struct {
	ID          uint   `gorm:"primaryKey"`
	OwnerID     uint   `gorm:"index;not null"`
	FirstName   string `gorm:"size:64;not null"`
	Surname     string `gorm:"size:64"`
	Company     string `gorm:"size:128"`
	PhoneNumber string `gorm:"size:32;not null"`
	Email       string `gorm:"size:128"`
	Picture     string `gorm:"size:256"`
	Birthday    string `gorm:"size:32"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Wallpaper struct {
	ID     uint   `gorm:"primaryKey"`
	Name   string `gorm:"size:128"`
	Image  string `gorm:"size:256;not null"`
	Active bool   `gorm:"not null;default:false"`
}

type RefreshToken struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"index;not null"`
	Token     string    `gorm:"uniqueIndex;size:128;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	RevokedAt *time.Time
	CreatedAt time.Time
}
