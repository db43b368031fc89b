package delivery

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"messenger/internal/models"
	"messenger/internal/presence"
	"messenger/internal/store"
)

// fakeStore is an in-memory MessageStore used to exercise the router
// without a database.
type fakeStore struct {
	mu         sync.Mutex
	nextID     uint
	messages   map[uint]*models.Message
	members    map[uint]map[uint]bool // groupID -> userID -> member
	roomMsgs   map[uint][]uint
	failCreate bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		messages: make(map[uint]*models.Message),
		members:  make(map[uint]map[uint]bool),
		roomMsgs: make(map[uint][]uint),
	}
}

func (f *fakeStore) addGroup(groupID uint, memberIDs ...uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[groupID] = make(map[uint]bool)
	for _, id := range memberIDs {
		f.members[groupID][id] = true
	}
}

func (f *fakeStore) messageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func (f *fakeStore) CreateMessage(m *models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return errors.New("store unavailable")
	}
	f.nextID++
	m.ID = f.nextID
	cp := *m
	f.messages[m.ID] = &cp
	return nil
}

func (f *fakeStore) CreateGroupMessage(groupID uint, m *models.Message) error {
	f.mu.Lock()
	if f.failCreate {
		f.mu.Unlock()
		return errors.New("store unavailable")
	}
	if _, ok := f.members[groupID]; !ok {
		f.mu.Unlock()
		return store.ErrNotFound
	}
	f.nextID++
	m.ID = f.nextID
	cp := *m
	f.messages[m.ID] = &cp
	f.roomMsgs[groupID] = append(f.roomMsgs[groupID], m.ID)
	f.mu.Unlock()
	return nil
}

func (f *fakeStore) AppendToRoom(groupID, messageID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.members[groupID]; !ok {
		return store.ErrNotFound
	}
	f.roomMsgs[groupID] = append(f.roomMsgs[groupID], messageID)
	return nil
}

func (f *fakeStore) FindMessage(id uint) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeStore) FindConversation(userA, userB uint) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Message
	for id := uint(1); id <= f.nextID; id++ {
		m, ok := f.messages[id]
		if !ok || m.ReceiverKind != models.ReceiverUser {
			continue
		}
		if (m.SenderID == userA && m.ReceiverID == userB) || (m.SenderID == userB && m.ReceiverID == userA) {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeStore) FindByRoom(groupID uint) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.members[groupID]; !ok {
		return nil, store.ErrNotFound
	}
	var out []models.Message
	for _, id := range f.roomMsgs[groupID] {
		out = append(out, *f.messages[id])
	}
	return out, nil
}

func (f *fakeStore) DeleteMessage(id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return store.ErrNotFound
	}
	m.Deleted = true
	m.Body = ""
	return nil
}

func (f *fakeStore) UpdateMessage(id uint, body string) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok || m.Deleted {
		return nil, store.ErrNotFound
	}
	m.Body = body
	cp := *m
	return &cp, nil
}

func (f *fakeStore) IsMember(groupID, userID uint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.members[groupID][userID], nil
}

func (f *fakeStore) GroupsForUser(userID uint) ([]uint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []uint
	for gid, members := range f.members {
		if members[userID] {
			out = append(out, gid)
		}
	}
	return out, nil
}

// recordingConn captures pushed frames; dead conns refuse every push.
type recordingConn struct {
	mu     sync.Mutex
	frames [][]byte
	dead   bool
}

func (c *recordingConn) Send(b []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dead {
		return false
	}
	c.frames = append(c.frames, b)
	return true
}

func (c *recordingConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

type frame struct {
	Type      string      `json:"type"`
	MessageID uint        `json:"message_id"`
	Message   *MessageDTO `json:"message"`
}

func (c *recordingConn) lastFrame(t *testing.T) frame {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == 0 {
		t.Fatal("no frames received")
	}
	var f frame
	if err := json.Unmarshal(c.frames[len(c.frames)-1], &f); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	return f
}

func TestSendDirect_PersistedWithNobodyOnline(t *testing.T) {
	st := newFakeStore()
	reg := presence.NewRegistry()
	router := NewRouter(st, reg)

	// Receiver is offline: routing still persists and succeeds
	msg, err := router.SendDirect(1, 2, Payload{Text: "hello"})
	if err != nil {
		t.Fatalf("SendDirect() error = %v", err)
	}
	if msg.ID == 0 {
		t.Error("SendDirect() did not assign a message id")
	}

	history, err := st.FindConversation(1, 2)
	if err != nil {
		t.Fatalf("FindConversation() error = %v", err)
	}
	if len(history) != 1 || history[0].ID != msg.ID {
		t.Errorf("history = %v, want exactly the routed message", history)
	}
}

func TestSendDirect_StoreFailureMeansNoBroadcast(t *testing.T) {
	st := newFakeStore()
	st.failCreate = true
	reg := presence.NewRegistry()
	router := NewRouter(st, reg)

	receiver := &recordingConn{}
	reg.Register(2, receiver)

	if _, err := router.SendDirect(1, 2, Payload{Text: "hello"}); err == nil {
		t.Fatal("SendDirect() should fail when the store fails")
	}
	if receiver.count() != 0 {
		t.Errorf("receiver got %d frames, want 0 after store failure", receiver.count())
	}
}

func TestSendDirect_Scenario(t *testing.T) {
	st := newFakeStore()
	reg := presence.NewRegistry()
	router := NewRouter(st, reg)

	connA := &recordingConn{}
	connB := &recordingConn{}
	reg.Register(1, connA)
	reg.Register(2, connB)

	if _, err := router.SendDirect(1, 2, Payload{Text: "hi B"}); err != nil {
		t.Fatalf("SendDirect() error = %v", err)
	}

	got := connB.lastFrame(t)
	if got.Type != EventReceiveMessage {
		t.Errorf("frame type = %s, want %s", got.Type, EventReceiveMessage)
	}
	if got.Message == nil || got.Message.SenderID != 1 {
		t.Errorf("frame sender = %+v, want sender_id 1", got.Message)
	}

	history, _ := st.FindConversation(1, 2)
	if len(history) != 1 {
		t.Errorf("history length = %d, want 1", len(history))
	}
}

func TestSendGroup_FanoutCompleteness(t *testing.T) {
	st := newFakeStore()
	st.addGroup(10, 1, 2, 3)
	reg := presence.NewRegistry()
	router := NewRouter(st, reg)

	room := presence.GroupRoom(10)
	members := []*recordingConn{{}, {}, {}}
	for i, c := range members {
		reg.Register(uint(i+1), c)
		reg.JoinRoom(c, room)
	}
	outsider := &recordingConn{}
	reg.Register(9, outsider)

	if _, err := router.SendGroup(1, 10, Payload{Text: "hello room"}); err != nil {
		t.Fatalf("SendGroup() error = %v", err)
	}

	for i, c := range members {
		if c.count() != 1 {
			t.Errorf("member %d received %d frames, want exactly 1", i, c.count())
		}
	}
	if outsider.count() != 0 {
		t.Errorf("outsider received %d frames, want 0", outsider.count())
	}
}

func TestSendGroup_NotAMember(t *testing.T) {
	st := newFakeStore()
	st.addGroup(10, 2, 3)
	reg := presence.NewRegistry()
	router := NewRouter(st, reg)

	_, err := router.SendGroup(1, 10, Payload{Text: "let me in"})
	if !errors.Is(err, ErrNotAMember) {
		t.Fatalf("SendGroup() error = %v, want ErrNotAMember", err)
	}
	// The membership check happens before any write: no orphaned message
	if st.messageCount() != 0 {
		t.Errorf("store has %d messages after rejection, want 0", st.messageCount())
	}
}

func TestSendGroup_OfflineMemberRecoversFromHistory(t *testing.T) {
	st := newFakeStore()
	st.addGroup(10, 1, 2, 3)
	reg := presence.NewRegistry()
	router := NewRouter(st, reg)

	room := presence.GroupRoom(10)
	connA := &recordingConn{}
	connB := &recordingConn{}
	reg.Register(1, connA)
	reg.JoinRoom(connA, room)
	reg.Register(2, connB)
	reg.JoinRoom(connB, room)
	// User 3 is offline

	msg, err := router.SendGroup(1, 10, Payload{Text: "meeting at 5"})
	if err != nil {
		t.Fatalf("SendGroup() error = %v", err)
	}

	got := connB.lastFrame(t)
	if got.Type != EventReceiveGroupMessage {
		t.Errorf("frame type = %s, want %s", got.Type, EventReceiveGroupMessage)
	}

	// Offline member later fetches the room history and sees the message
	history, err := st.FindByRoom(10)
	if err != nil {
		t.Fatalf("FindByRoom() error = %v", err)
	}
	if len(history) != 1 || history[0].ID != msg.ID {
		t.Errorf("room history = %v, want the routed message", history)
	}
}

func TestSendGroup_DeadHandleTolerated(t *testing.T) {
	st := newFakeStore()
	st.addGroup(10, 1, 2)
	reg := presence.NewRegistry()
	router := NewRouter(st, reg)

	room := presence.GroupRoom(10)
	dead := &recordingConn{dead: true}
	reg.Register(2, dead)
	reg.JoinRoom(dead, room)

	// A dead handle at push time is not an error: persistence stands
	msg, err := router.SendGroup(1, 10, Payload{Text: "anyone there"})
	if err != nil {
		t.Fatalf("SendGroup() error = %v", err)
	}
	history, _ := st.FindByRoom(10)
	if len(history) != 1 || history[0].ID != msg.ID {
		t.Errorf("room history = %v, want the routed message", history)
	}
}

func TestDelete_NotifiesBothParties(t *testing.T) {
	st := newFakeStore()
	reg := presence.NewRegistry()
	router := NewRouter(st, reg)

	connA := &recordingConn{}
	connB := &recordingConn{}
	reg.Register(1, connA)
	reg.Register(2, connB)

	msg, err := router.SendDirect(1, 2, Payload{Text: "oops"})
	if err != nil {
		t.Fatalf("SendDirect() error = %v", err)
	}
	if err := router.Delete(msg.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	for name, c := range map[string]*recordingConn{"sender": connA, "receiver": connB} {
		got := c.lastFrame(t)
		if got.Type != EventMessageDeleted {
			t.Errorf("%s frame type = %s, want %s", name, got.Type, EventMessageDeleted)
		}
		if got.MessageID != msg.ID {
			t.Errorf("%s frame message_id = %d, want %d", name, got.MessageID, msg.ID)
		}
	}

	stored, _ := st.FindMessage(msg.ID)
	if !stored.Deleted {
		t.Error("store does not reflect the deletion")
	}
}

func TestDelete_NotFound(t *testing.T) {
	st := newFakeStore()
	router := NewRouter(st, presence.NewRegistry())

	if err := router.Delete(404); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
}

func TestUpdate_NotifiesBothParties(t *testing.T) {
	st := newFakeStore()
	reg := presence.NewRegistry()
	router := NewRouter(st, reg)

	connB := &recordingConn{}
	reg.Register(2, connB)

	msg, err := router.SendDirect(1, 2, Payload{Text: "draft"})
	if err != nil {
		t.Fatalf("SendDirect() error = %v", err)
	}
	updated, err := router.Update(msg.ID, "final")
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Body != "final" {
		t.Errorf("Update() body = %s, want final", updated.Body)
	}

	got := connB.lastFrame(t)
	if got.Type != EventMessageUpdated {
		t.Errorf("frame type = %s, want %s", got.Type, EventMessageUpdated)
	}
	if got.Message == nil || got.Message.Body != "final" {
		t.Errorf("frame body = %+v, want final", got.Message)
	}
}

func TestSendDirect_AttachmentsPreserved(t *testing.T) {
	st := newFakeStore()
	router := NewRouter(st, presence.NewRegistry())

	exp := time.Now().Add(time.Hour)
	payload := Payload{
		Text:      "see attached",
		Photos:    []PhotoRef{{Name: "cat.png", Size: 1024, Ref: "abc.png"}},
		Documents: []DocumentRef{{Name: "cv.pdf", Type: "application/pdf", Size: 2048, Ref: "def.pdf"}},
		Polls:     []PollDraft{{Question: "lunch?", Options: []string{"yes", "no"}, ExpiresAt: &exp}},
		Contacts:  []ContactCard{{Name: "Ann", PhoneNumber: "+100"}},
	}
	msg, err := router.SendDirect(1, 2, payload)
	if err != nil {
		t.Fatalf("SendDirect() error = %v", err)
	}

	if len(msg.Photos) != 1 || msg.Photos[0].URL != "abc.png" {
		t.Errorf("photos = %v, want the uploaded ref", msg.Photos)
	}
	if len(msg.Documents) != 1 || msg.Documents[0].URI != "def.pdf" {
		t.Errorf("documents = %v, want the uploaded ref", msg.Documents)
	}
	if len(msg.Polls) != 1 || len(msg.Polls[0].Options) != 2 {
		t.Errorf("polls = %v, want one poll with two options", msg.Polls)
	}
	if len(msg.Contacts) != 1 || msg.Contacts[0].Name != "Ann" {
		t.Errorf("contacts = %v, want the shared card", msg.Contacts)
	}
}
