package store

import (
	"errors"
	"time"

	"messenger/internal/models"

	"gorm.io/gorm"
)

// GormStore 是 MessageStore 的 Postgres 实现。
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) CreateMessage(m *models.Message) error {
	if m.SentAt.IsZero() {
		m.SentAt = time.Now()
	}
	if err := s.db.Create(m).Error; err != nil {
		return storeErr("create message", err)
	}
	return nil
}

func (s *GormStore) CreateGroupMessage(groupID uint, m *models.Message) error {
	if m.SentAt.IsZero() {
		m.SentAt = time.Now()
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var group models.Group
		if err := tx.First(&group, groupID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		link := models.GroupMessage{GroupID: groupID, MessageID: m.ID}
		return tx.Create(&link).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return storeErr("create group message", err)
	}
	return nil
}

func (s *GormStore) AppendToRoom(groupID, messageID uint) error {
	var group models.Group
	if err := s.db.First(&group, groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return storeErr("append to room", err)
	}
	link := models.GroupMessage{GroupID: groupID, MessageID: messageID}
	if err := s.db.Create(&link).Error; err != nil {
		return storeErr("append to room", err)
	}
	return nil
}

func (s *GormStore) FindMessage(id uint) (*models.Message, error) {
	var m models.Message
	err := s.preload().First(&m, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeErr("find message", err)
	}
	return &m, nil
}

func (s *GormStore) FindConversation(userA, userB uint) ([]models.Message, error) {
	var msgs []models.Message
	err := s.preload().
		Where("receiver_kind = ?", models.ReceiverUser).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", userA, userB, userB, userA).
		Order("id asc").
		Find(&msgs).Error
	if err != nil {
		return nil, storeErr("find conversation", err)
	}
	return msgs, nil
}

func (s *GormStore) FindByRoom(groupID uint) ([]models.Message, error) {
	var group models.Group
	if err := s.db.First(&group, groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeErr("find by room", err)
	}
	var msgs []models.Message
	err := s.preload().
		Joins("JOIN group_messages ON group_messages.message_id = messages.id").
		Where("group_messages.group_id = ?", groupID).
		Order("group_messages.id asc").
		Find(&msgs).Error
	if err != nil {
		return nil, storeErr("find by room", err)
	}
	return msgs, nil
}

func (s *GormStore) DeleteMessage(id uint) error {
	res := s.db.Model(&models.Message{}).Where("id = ?", id).
		Updates(map[string]interface{}{"deleted": true, "body": ""})
	if res.Error != nil {
		return storeErr("delete message", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) UpdateMessage(id uint, body string) (*models.Message, error) {
	res := s.db.Model(&models.Message{}).Where("id = ? AND deleted = false", id).Update("body", body)
	if res.Error != nil {
		return nil, storeErr("update message", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.FindMessage(id)
}

func (s *GormStore) IsMember(groupID, userID uint) (bool, error) {
	var count int64
	err := s.db.Model(&models.GroupMember{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&count).Error
	if err != nil {
		return false, storeErr("is member", err)
	}
	return count > 0, nil
}

func (s *GormStore) GroupsForUser(userID uint) ([]uint, error) {
	var ids []uint
	err := s.db.Model(&models.GroupMember{}).
		Where("user_id = ?", userID).
		Pluck("group_id", &ids).Error
	if err != nil {
		return nil, storeErr("groups for user", err)
	}
	return ids, nil
}

func (s *GormStore) preload() *gorm.DB {
	return s.db.Preload("Photos").Preload("Documents").Preload("Polls").Preload("Polls.Options").Preload("Contacts")
}
