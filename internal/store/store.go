package store

import (
	"errors"
	"fmt"

	"messenger/internal/models"
)

// ErrNotFound 表示消息或群组 id 无法解析。
var ErrNotFound = errors.New("not found")

// MessageStore 是投递路由依赖的持久层边界。
// 广播永远发生在这些写操作成功之后（persist-before-broadcast）。
type MessageStore interface {
	// CreateMessage 持久化一条新消息并回填 ID 与 SentAt。
	CreateMessage(m *models.Message) error
	// CreateGroupMessage 在同一事务内持久化消息并追加到群消息序列，
	// 二者要么同时成功要么同时失败。群不存在时返回 ErrNotFound。
	CreateGroupMessage(groupID uint, m *models.Message) error
	// AppendToRoom 把已存在的消息追加到群消息序列。
	AppendToRoom(groupID, messageID uint) error
	// FindMessage 按 id 取回单条消息。
	FindMessage(id uint) (*models.Message, error)
	// FindConversation 返回两个用户之间的全部消息，按追加顺序升序。
	FindConversation(userA, userB uint) ([]models.Message, error)
	// FindByRoom 返回群内全部消息，按追加顺序升序。
	FindByRoom(groupID uint) ([]models.Message, error)
	// DeleteMessage 软删除消息：正文清空、Deleted 置位，行保留以便通知双方。
	DeleteMessage(id uint) error
	// UpdateMessage 更新消息正文并返回新状态。
	UpdateMessage(id uint, body string) (*models.Message, error)
	// IsMember 判断用户是否为群成员。
	IsMember(groupID, userID uint) (bool, error)
	// GroupsForUser 返回用户所属的全部群 id，连接建立时用于批量加入房间。
	GroupsForUser(userID uint) ([]uint, error)
}

func storeErr(op string, err error) error {
	return fmt.Errorf("store: %s: %w", op, err)
}
