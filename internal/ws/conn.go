package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"messenger/internal/auth"
	"messenger/internal/delivery"
	"messenger/internal/metrics"
	"messenger/internal/models"
	"messenger/internal/presence"
	"messenger/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Client 是一条连接的会话：握手认证 → 登记在线 → 分发事件 → 拆除清理。
// 重连不会复用会话，新连接就是一个全新的 Client。
type Client struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	user      *models.User
	reg       *presence.Registry
	router    *delivery.Router
	store     store.MessageStore
	closeOnce sync.Once
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// 入站事件统一信封，type 决定其余字段如何取用。
type inboundEvent struct {
	Type       string `json:"type"`
	ReceiverID uint   `json:"receiver_id"`
	RoomID     uint   `json:"room_id"`
	MessageID  uint   `json:"message_id"`
	delivery.Payload
}

type errorEvent struct {
	Type  string `json:"type"`
	Op    string `json:"op"`
	Error string `json:"error"`
}

type ackEvent struct {
	Type    string               `json:"type"`
	Message *delivery.MessageDTO `json:"message"`
}

// Serve 处理 /ws：握手阶段验证凭证，失败的连接不会进入在线登记。
// 认证通过后注册个人房间并加入用户当前所属的全部群房间，
// 连接建立之后新加入的群需要客户端显式发 joinRoom。
func Serve(reg *presence.Registry, router *delivery.Router, st store.MessageStore, verifier auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			authz := c.GetHeader("Authorization")
			if len(authz) > 7 && (authz[:7] == "Bearer " || authz[:7] == "bearer ") {
				token = authz[7:]
			}
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		user, err := verifier.Verify(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		client := &Client{
			conn:   conn,
			send:   make(chan []byte, 256),
			done:   make(chan struct{}),
			user:   user,
			reg:    reg,
			router: router,
			store:  st,
		}
		reg.Register(user.ID, client)
		groups, err := st.GroupsForUser(user.ID)
		if err != nil {
			log.Error().Err(err).Uint("user_id", user.ID).Msg("ws join groups")
		}
		for _, gid := range groups {
			reg.JoinRoom(client, presence.GroupRoom(gid))
		}
		metrics.WsConnections.Inc()

		go client.writePump()
		client.readPump()
	}
}

// Send 非阻塞投递一帧给本连接。连接已拆除或缓冲占满时返回 false，
// 由调用方（路由的 fan-out）静默容忍。
func (c *Client) Send(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

// teardown 只会生效一次：从全部房间摘除本连接并关闭底层 socket。
// send 通道保持打开，之后的 Send 通过 done 感知关闭并直接丢弃。
func (c *Client) teardown() {
	c.closeOnce.Do(func() {
		c.reg.LeaveAll(c)
		metrics.WsConnections.Dec()
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *Client) readPump() {
	defer c.teardown()
	c.conn.SetReadLimit(1 << 20) // 1MB
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var in inboundEvent
		if err := json.Unmarshal(data, &in); err != nil || in.Type == "" {
			continue
		}
		// 单个事件失败只回发 error 帧，不影响连接和其他在途事件。
		c.dispatch(in)
	}
}

func (c *Client) dispatch(in inboundEvent) {
	switch in.Type {
	case "sendMessage":
		msg, err := c.router.SendDirect(c.user.ID, in.ReceiverID, in.Payload)
		if err != nil {
			c.sendError("sendMessage", err)
			return
		}
		c.sendAck("messageSent", msg)
	case "sendGroupMessage":
		msg, err := c.router.SendGroup(c.user.ID, in.RoomID, in.Payload)
		if err != nil {
			c.sendError("sendGroupMessage", err)
			return
		}
		c.sendAck("messageSent", msg)
	case "joinRoom":
		c.reg.JoinRoom(c, presence.GroupRoom(in.RoomID))
	case "deleteMessage":
		if err := c.router.Delete(in.MessageID); err != nil {
			c.sendError("deleteMessage", err)
		}
	case "updateMessage":
		if _, err := c.router.Update(in.MessageID, in.Text); err != nil {
			c.sendError("updateMessage", err)
		}
	default:
		c.sendError(in.Type, errors.New("unknown event"))
	}
}

func (c *Client) sendAck(typ string, msg *models.Message) {
	dto := delivery.ToDTO(msg)
	if b, err := json.Marshal(ackEvent{Type: typ, Message: &dto}); err == nil {
		c.Send(b)
	}
}

func (c *Client) sendError(op string, err error) {
	reason := "request failed"
	switch {
	case errors.Is(err, store.ErrNotFound):
		reason = "not found"
	case errors.Is(err, delivery.ErrNotAMember):
		reason = "not a member"
	default:
		log.Error().Err(err).Str("op", op).Uint("user_id", c.user.ID).Msg("ws event")
	}
	if b, merr := json.Marshal(errorEvent{Type: "error", Op: op, Error: reason}); merr == nil {
		c.Send(b)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			_ = w.Close()
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
