package delivery

import (
	"time"

	"messenger/internal/models"
)

// Payload 是一次发送请求携带的内容。附件在进入路由前已经由上传
// 协作方换成稳定引用，这里不接触原始字节。
type Payload struct {
	Text      string        `json:"text"`
	Photos    []PhotoRef    `json:"photos,omitempty"`
	Documents []DocumentRef `json:"documents,omitempty"`
	Polls     []PollDraft   `json:"polls,omitempty"`
	Contacts  []ContactCard `json:"contacts,omitempty"`
}

type PhotoRef struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Ref  string `json:"ref"`
}

type DocumentRef struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	Ref  string `json:"ref"`
}

type PollDraft struct {
	Question  string     `json:"question"`
	Options   []string   `json:"options"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type ContactCard struct {
	Name           string  `json:"name"`
	Email          string  `json:"email"`
	PhoneNumber    string  `json:"phone_number"`
	ProfilePicture string  `json:"profile_picture"`
	Address        string  `json:"address"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
}

// buildMessage 把发送请求展开成待持久化的消息实体。
func buildMessage(senderID, receiverID uint, kind models.ReceiverKind, p Payload) *models.Message {
	m := &models.Message{
		SenderID:     senderID,
		ReceiverID:   receiverID,
		ReceiverKind: kind,
		Body:         p.Text,
		SentAt:       time.Now(),
	}
	for _, ph := range p.Photos {
		m.Photos = append(m.Photos, models.Photo{FileName: ph.Name, FileSize: ph.Size, URL: ph.Ref})
	}
	for _, d := range p.Documents {
		m.Documents = append(m.Documents, models.Document{Name: d.Name, Type: d.Type, Size: d.Size, URI: d.Ref})
	}
	for _, pl := range p.Polls {
		poll := models.Poll{Question: pl.Question, CreatedBy: senderID, ExpiresAt: pl.ExpiresAt}
		for _, opt := range pl.Options {
			poll.Options = append(poll.Options, models.PollOption{Option: opt})
		}
		m.Polls = append(m.Polls, poll)
	}
	for _, ct := range p.Contacts {
		m.Contacts = append(m.Contacts, models.SharedContact{
			Name:           ct.Name,
			Email:          ct.Email,
			PhoneNumber:    ct.PhoneNumber,
			ProfilePicture: ct.ProfilePicture,
			Address:        ct.Address,
			Latitude:       ct.Latitude,
			Longitude:      ct.Longitude,
			SharedAt:       time.Now(),
		})
	}
	return m
}

// MessageDTO 是对外（WS 事件与 REST 历史）输出的消息数据。
type MessageDTO struct {
	ID           uint          `json:"id"`
	SenderID     uint          `json:"sender_id"`
	ReceiverID   uint          `json:"receiver_id"`
	ReceiverKind string        `json:"receiver_kind"`
	Body         string        `json:"body"`
	Deleted      bool          `json:"deleted,omitempty"`
	Photos       []PhotoRef    `json:"photos,omitempty"`
	Documents    []DocumentRef `json:"documents,omitempty"`
	Polls        []PollDTO     `json:"polls,omitempty"`
	Contacts     []ContactCard `json:"contacts,omitempty"`
	SentAt       time.Time     `json:"sent_at"`
}

type PollDTO struct {
	ID        uint            `json:"id"`
	Question  string          `json:"question"`
	Options   []PollOptionDTO `json:"options"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

type PollOptionDTO struct {
	ID     uint   `json:"id"`
	Option string `json:"option"`
	Votes  int    `json:"votes"`
}

func ToDTO(m *models.Message) MessageDTO {
	dto := MessageDTO{
		ID:           m.ID,
		SenderID:     m.SenderID,
		ReceiverID:   m.ReceiverID,
		ReceiverKind: string(m.ReceiverKind),
		Body:         m.Body,
		Deleted:      m.Deleted,
		SentAt:       m.SentAt,
	}
	for _, ph := range m.Photos {
		dto.Photos = append(dto.Photos, PhotoRef{Name: ph.FileName, Size: ph.FileSize, Ref: ph.URL})
	}
	for _, d := range m.Documents {
		dto.Documents = append(dto.Documents, DocumentRef{Name: d.Name, Type: d.Type, Size: d.Size, Ref: d.URI})
	}
	for _, pl := range m.Polls {
		p := PollDTO{ID: pl.ID, Question: pl.Question, ExpiresAt: pl.ExpiresAt}
		for _, opt := range pl.Options {
			p.Options = append(p.Options, PollOptionDTO{ID: opt.ID, Option: opt.Option, Votes: opt.Votes})
		}
		dto.Polls = append(dto.Polls, p)
	}
	for _, ct := range m.Contacts {
		dto.Contacts = append(dto.Contacts, ContactCard{
			Name:           ct.Name,
			Email:          ct.Email,
			PhoneNumber:    ct.PhoneNumber,
			ProfilePicture: ct.ProfilePicture,
			Address:        ct.Address,
			Latitude:       ct.Latitude,
			Longitude:      ct.Longitude,
		})
	}
	return dto
}
