package presence

import (
	"strconv"
	"sync"
)

// RoomID 是一个逻辑广播域：个人房间或群房间。
// 用户和群的 id 空间通过前缀隔离，避免互相碰撞。
type RoomID string

func UserRoom(userID uint) RoomID {
	return RoomID("user:" + strconv.FormatUint(uint64(userID), 10))
}

func GroupRoom(groupID uint) RoomID {
	return RoomID("group:" + strconv.FormatUint(uint64(groupID), 10))
}

// Conn 是在线连接句柄。Send 非阻塞投递一帧，连接已死或缓冲占满时返回 false。
type Conn interface {
	Send(b []byte) bool
}

// Registry 维护用户到在线连接、连接到已加入房间的双向映射。
// 全部变更在同一把锁下进行，Resolve 在读锁内拷贝快照，
// 保证 fan-out 不会看到加入/离开进行到一半的成员视图。
type Registry struct {
	mu    sync.RWMutex
	rooms map[RoomID]map[Conn]struct{}
	conns map[Conn]map[RoomID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[RoomID]map[Conn]struct{}),
		conns: make(map[Conn]map[RoomID]struct{}),
	}
}

// Register 把连接登记到用户的个人房间。同一用户多端同时在线各自登记。
func (r *Registry) Register(userID uint, c Conn) {
	r.join(c, UserRoom(userID))
}

// JoinRoom 把连接加入房间，重复加入是幂等的。
func (r *Registry) JoinRoom(c Conn, room RoomID) {
	r.join(c, room)
}

func (r *Registry) join(c Conn, room RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members := r.rooms[room]
	if members == nil {
		members = make(map[Conn]struct{})
		r.rooms[room] = members
	}
	members[c] = struct{}{}
	joined := r.conns[c]
	if joined == nil {
		joined = make(map[RoomID]struct{})
		r.conns[c] = joined
	}
	joined[room] = struct{}{}
}

// LeaveAll 在连接拆除时调用，把连接从所有房间摘除。重复调用是无害的。
func (r *Registry) LeaveAll(c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for room := range r.conns[c] {
		members := r.rooms[room]
		delete(members, c)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	delete(r.conns, c)
}

// Resolve 返回房间当前全部在线句柄的快照。没人在线返回空切片，不是错误：
// 消息已经落库，离线方之后通过历史拉取补齐。
func (r *Registry) Resolve(room RoomID) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[room]
	out := make([]Conn, 0, len(members))
	for c := range members {
		out = append(out, c)
	}
	return out
}

// Online 返回房间在线连接数，供 REST 接口复用。
func (r *Registry) Online(room RoomID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}
