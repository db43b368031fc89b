package service

import (
	"errors"

	"messenger/internal/models"
	"messenger/internal/presence"

	"gorm.io/gorm"
)

// GroupService 封装群组相关的业务逻辑。
// 成员变更是无主的：任何已认证成员都可以增删成员，与来源行为保持一致。
type GroupService struct {
	db  *gorm.DB
	reg *presence.Registry
}

func NewGroupService(db *gorm.DB, reg *presence.Registry) *GroupService {
	return &GroupService{db: db, reg: reg}
}

// GroupDTO 是对外输出的群组数据。
type GroupDTO struct {
	ID      uint   `json:"id"`
	Name    string `json:"name"`
	Members []uint `json:"members"`
	Online  int    `json:"online"`
}

// Create 创建群组，创建者自动成为成员。
func (s *GroupService) Create(name string, creatorID uint, memberIDs []uint) (*GroupDTO, error) {
	var group models.Group
	err := s.db.Transaction(func(tx *gorm.DB) error {
		group = models.Group{Name: name}
		if err := tx.Create(&group).Error; err != nil {
			return err
		}
		seen := map[uint]struct{}{creatorID: {}}
		members := []models.GroupMember{{GroupID: group.ID, UserID: creatorID}}
		for _, id := range memberIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			members = append(members, models.GroupMember{GroupID: group.ID, UserID: id})
		}
		return tx.Create(&members).Error
	})
	if err != nil {
		return nil, err
	}
	return s.Get(group.ID)
}

// Get 返回群组及其成员集合。
func (s *GroupService) Get(groupID uint) (*GroupDTO, error) {
	var group models.Group
	if err := s.db.First(&group, groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}
	var memberIDs []uint
	if err := s.db.Model(&models.GroupMember{}).Where("group_id = ?", groupID).Pluck("user_id", &memberIDs).Error; err != nil {
		return nil, err
	}
	return &GroupDTO{
		ID:      group.ID,
		Name:    group.Name,
		Members: memberIDs,
		Online:  s.reg.Online(presence.GroupRoom(group.ID)),
	}, nil
}

// ListForUser 返回用户所属的全部群组。
func (s *GroupService) ListForUser(userID uint) ([]GroupDTO, error) {
	var groupIDs []uint
	if err := s.db.Model(&models.GroupMember{}).Where("user_id = ?", userID).Pluck("group_id", &groupIDs).Error; err != nil {
		return nil, err
	}
	out := make([]GroupDTO, 0, len(groupIDs))
	for _, gid := range groupIDs {
		dto, err := s.Get(gid)
		if err != nil {
			return nil, err
		}
		out = append(out, *dto)
	}
	return out, nil
}

// AddMember 由现有成员把新用户拉进群，重复添加是幂等的。
func (s *GroupService) AddMember(groupID, actorID, userID uint) error {
	if err := s.requireMember(groupID, actorID); err != nil {
		return err
	}
	var count int64
	if err := s.db.Model(&models.GroupMember{}).Where("group_id = ? AND user_id = ?", groupID, userID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return s.db.Create(&models.GroupMember{GroupID: groupID, UserID: userID}).Error
}

// RemoveMember 由现有成员把用户移出群。
func (s *GroupService) RemoveMember(groupID, actorID, userID uint) error {
	if err := s.requireMember(groupID, actorID); err != nil {
		return err
	}
	return s.db.Where("group_id = ? AND user_id = ?", groupID, userID).Delete(&models.GroupMember{}).Error
}

func (s *GroupService) requireMember(groupID, userID uint) error {
	var group models.Group
	if err := s.db.First(&group, groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrGroupNotFound
		}
		return err
	}
	var count int64
	if err := s.db.Model(&models.GroupMember{}).Where("group_id = ? AND user_id = ?", groupID, userID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotAMember
	}
	return nil
}
