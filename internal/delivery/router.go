package delivery

import (
	"encoding/json"
	"errors"

	"messenger/internal/metrics"
	"messenger/internal/models"
	"messenger/internal/presence"
	"messenger/internal/store"

	"github.com/rs/zerolog/log"
)

// ErrNotAMember 在发送者不是目标群成员时返回，且发生在任何落库之前。
var ErrNotAMember = errors.New("not a member of room")

// 推送给在线连接的事件名，与客户端约定保持一致。
const (
	EventReceiveMessage      = "receiveMessage"
	EventReceiveGroupMessage = "receiveGroupMessage"
	EventMessageDeleted      = "messageDeleted"
	EventMessageUpdated      = "messageUpdated"
)

// Router 先落库再广播：持久化成功之前不会有任何在线推送，
// 因此收到推送的客户端总能从历史里重新拉到同一条消息。
// 落库失败整个发送失败且零推送；推送目标刚好断线则静默容忍，
// 消息仍可通过历史拉取恢复。
type Router struct {
	store store.MessageStore
	reg   *presence.Registry
}

func NewRouter(st store.MessageStore, reg *presence.Registry) *Router {
	return &Router{store: st, reg: reg}
}

type event struct {
	Type      string      `json:"type"`
	MessageID uint        `json:"message_id,omitempty"`
	Message   *MessageDTO `json:"message,omitempty"`
}

// SendDirect 持久化一条私聊消息，然后向接收者个人房间推送 receiveMessage。
func (r *Router) SendDirect(senderID, receiverID uint, p Payload) (*models.Message, error) {
	msg := buildMessage(senderID, receiverID, models.ReceiverUser, p)
	if err := r.store.CreateMessage(msg); err != nil {
		return nil, err
	}
	dto := ToDTO(msg)
	r.fanout(presence.UserRoom(receiverID), event{Type: EventReceiveMessage, Message: &dto})
	metrics.MessagesTotal.WithLabelValues("direct").Inc()
	return msg, nil
}

// SendGroup 先校验发送者的群成员身份（拒绝时不产生孤儿消息），
// 再在一个事务里写消息与群序列关联，最后向群房间推送 receiveGroupMessage。
func (r *Router) SendGroup(senderID, groupID uint, p Payload) (*models.Message, error) {
	ok, err := r.store.IsMember(groupID, senderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAMember
	}
	msg := buildMessage(senderID, groupID, models.ReceiverGroup, p)
	if err := r.store.CreateGroupMessage(groupID, msg); err != nil {
		return nil, err
	}
	dto := ToDTO(msg)
	r.fanout(presence.GroupRoom(groupID), event{Type: EventReceiveGroupMessage, Message: &dto})
	metrics.MessagesTotal.WithLabelValues("group").Inc()
	return msg, nil
}

// Delete 软删除消息，成功后向原始发送方与接收方房间推送 messageDeleted。
// 通知对象以消息记录的双方为准，与当前群成员变动无关。
func (r *Router) Delete(messageID uint) error {
	msg, err := r.store.FindMessage(messageID)
	if err != nil {
		return err
	}
	if err := r.store.DeleteMessage(messageID); err != nil {
		return err
	}
	r.notifyParties(msg, event{Type: EventMessageDeleted, MessageID: messageID})
	return nil
}

// Update 更新消息正文，成功后向原始双方房间推送 messageUpdated。
func (r *Router) Update(messageID uint, body string) (*models.Message, error) {
	msg, err := r.store.UpdateMessage(messageID, body)
	if err != nil {
		return nil, err
	}
	dto := ToDTO(msg)
	r.notifyParties(msg, event{Type: EventMessageUpdated, MessageID: messageID, Message: &dto})
	return msg, nil
}

// notifyParties 向原始发送方房间和接收方房间各推一次，
// 同时出现在两个房间里的连接只收到一帧。
func (r *Router) notifyParties(msg *models.Message, evt event) {
	b, err := json.Marshal(evt)
	if err != nil {
		log.Error().Err(err).Str("event", evt.Type).Msg("marshal event")
		return
	}
	receiverRoom := presence.UserRoom(msg.ReceiverID)
	if msg.ReceiverKind == models.ReceiverGroup {
		receiverRoom = presence.GroupRoom(msg.ReceiverID)
	}
	seen := make(map[presence.Conn]struct{})
	for _, room := range []presence.RoomID{presence.UserRoom(msg.SenderID), receiverRoom} {
		for _, c := range r.reg.Resolve(room) {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			if c.Send(b) {
				metrics.FanoutPushesTotal.Inc()
			} else {
				metrics.FanoutDropsTotal.Inc()
			}
		}
	}
}

func (r *Router) fanout(room presence.RoomID, evt event) {
	b, err := json.Marshal(evt)
	if err != nil {
		log.Error().Err(err).Str("event", evt.Type).Msg("marshal event")
		return
	}
	r.push(room, b)
}

// push 把一帧投递给房间快照里的每个句柄。句柄已死或缓冲占满时丢弃，
// 不上报错误：消息已持久化，接收方重连后拉历史即可补齐。
func (r *Router) push(room presence.RoomID, b []byte) {
	for _, c := range r.reg.Resolve(room) {
		if c.Send(b) {
			metrics.FanoutPushesTotal.Inc()
		} else {
			metrics.FanoutDropsTotal.Inc()
		}
	}
}
