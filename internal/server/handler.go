package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"messenger/internal/auth"
	"messenger/internal/delivery"
	"messenger/internal/service"
	"messenger/internal/store"
	"messenger/internal/upload"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Handler 聚合所有 HTTP handler，依赖注入 service 层、消息存储与上传协作方。
type Handler struct {
	userSvc      *service.UserService
	groupSvc     *service.GroupService
	storySvc     *service.StoryService
	contactSvc   *service.ContactService
	wallpaperSvc *service.WallpaperService
	msgStore     store.MessageStore
	saver        *upload.Saver
}

func NewHandler(
	userSvc *service.UserService,
	groupSvc *service.GroupService,
	storySvc *service.StoryService,
	contactSvc *service.ContactService,
	wallpaperSvc *service.WallpaperService,
	msgStore store.MessageStore,
	saver *upload.Saver,
) *Handler {
	return &Handler{
		userSvc:      userSvc,
		groupSvc:     groupSvc,
		storySvc:     storySvc,
		contactSvc:   contactSvc,
		wallpaperSvc: wallpaperSvc,
		msgStore:     msgStore,
		saver:        saver,
	}
}

// Register 处理用户注册请求。
func (h *Handler) Register(c *gin.Context) {
	var req struct {
		Name        string `json:"name"`
		Email       string `json:"email"`
		PhoneNumber string `json:"phone_number"`
		Password    string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Name == "" || req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if len(req.Password) < 4 || len(req.Password) > 128 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid password"})
		return
	}
	user, err := h.userSvc.Register(req.Name, req.Email, req.PhoneNumber, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "email taken"})
			return
		}
		log.Error().Err(err).Str("email", req.Email).Msg("register")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}
	c.JSON(http.StatusOK, user)
}

// Login 处理用户登录请求。
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	result, err := h.userSvc.Login(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		log.Error().Err(err).Str("email", req.Email).Msg("login")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// RefreshToken 处理 token 刷新请求。
func (h *Handler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	result, err := h.userSvc.RefreshTokens(req.RefreshToken)
	if err != nil {
		log.Warn().Err(err).Msg("refresh token")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Profile 返回当前用户资料。
func (h *Handler) Profile(c *gin.Context) {
	user, err := h.userSvc.Profile(auth.GetUserID(c))
	if err != nil {
		log.Error().Err(err).Uint("user_id", auth.GetUserID(c)).Msg("profile")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateProfile 更新当前用户的可变资料字段。
func (h *Handler) UpdateProfile(c *gin.Context) {
	var patch service.ProfilePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	user, err := h.userSvc.UpdateProfile(auth.GetUserID(c), patch)
	if err != nil {
		log.Error().Err(err).Uint("user_id", auth.GetUserID(c)).Msg("update profile")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update profile"})
		return
	}
	c.JSON(http.StatusOK, user)
}

// Conversation 返回当前用户与指定用户之间的历史消息，按追加顺序升序。
func (h *Handler) Conversation(c *gin.Context) {
	otherID, err := strconv.Atoi(c.Param("userID"))
	if err != nil || otherID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	msgs, err := h.msgStore.FindConversation(auth.GetUserID(c), uint(otherID))
	if err != nil {
		log.Error().Err(err).Int("other_id", otherID).Msg("list conversation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	out := make([]delivery.MessageDTO, 0, len(msgs))
	for i := range msgs {
		out = append(out, delivery.ToDTO(&msgs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"messages": out})
}

// CreateGroup 处理创建群组请求。
func (h *Handler) CreateGroup(c *gin.Context) {
	var req struct {
		Name    string `json:"name"`
		Members []uint `json:"members"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || len(req.Name) > 128 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group name"})
		return
	}
	group, err := h.groupSvc.Create(req.Name, auth.GetUserID(c), req.Members)
	if err != nil {
		log.Error().Err(err).Str("name", req.Name).Msg("create group")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create group"})
		return
	}
	c.JSON(http.StatusOK, group)
}

// ListGroups 返回当前用户所属的群组。
func (h *Handler) ListGroups(c *gin.Context) {
	groups, err := h.groupSvc.ListForUser(auth.GetUserID(c))
	if err != nil {
		log.Error().Err(err).Msg("list groups")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list groups"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// GetGroup 返回单个群组。
func (h *Handler) GetGroup(c *gin.Context) {
	groupID, ok := pathID(c, "id")
	if !ok {
		return
	}
	group, err := h.groupSvc.Get(groupID)
	if err != nil {
		if errors.Is(err, service.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		log.Error().Err(err).Uint("group_id", groupID).Msg("get group")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get group"})
		return
	}
	c.JSON(http.StatusOK, group)
}

// GroupMessages 返回群历史消息，按追加顺序升序。
func (h *Handler) GroupMessages(c *gin.Context) {
	groupID, ok := pathID(c, "id")
	if !ok {
		return
	}
	msgs, err := h.msgStore.FindByRoom(groupID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		log.Error().Err(err).Uint("group_id", groupID).Msg("list group messages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	out := make([]delivery.MessageDTO, 0, len(msgs))
	for i := range msgs {
		out = append(out, delivery.ToDTO(&msgs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"messages": out})
}

// AddGroupMember 把用户加入群组，操作者必须是现有成员。
func (h *Handler) AddGroupMember(c *gin.Context) {
	groupID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		UserID uint `json:"user_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if err := h.groupSvc.AddMember(groupID, auth.GetUserID(c), req.UserID); err != nil {
		h.groupMutationError(c, groupID, err, "add member")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RemoveGroupMember 把用户移出群组，操作者必须是现有成员。
func (h *Handler) RemoveGroupMember(c *gin.Context) {
	groupID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, err := strconv.Atoi(c.Param("userID"))
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	if err := h.groupSvc.RemoveMember(groupID, auth.GetUserID(c), uint(userID)); err != nil {
		h.groupMutationError(c, groupID, err, "remove member")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) groupMutationError(c *gin.Context, groupID uint, err error, op string) {
	switch {
	case errors.Is(err, service.ErrGroupNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
	case errors.Is(err, service.ErrNotAMember):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member"})
	default:
		log.Error().Err(err).Uint("group_id", groupID).Msg(op)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "request failed"})
	}
}

// Upload 接收附件原始字节，落盘后返回稳定引用。
// 客户端随后把引用塞进 sendMessage/sendGroupMessage 的 payload。
func (h *Handler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	refs, err := h.saver.SaveAll(form.File["photos"], form.File["documents"])
	if err != nil {
		log.Error().Err(err).Msg("save uploads")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}
	c.JSON(http.StatusOK, refs)
}

// CreateStory 发布新故事，媒体文件随请求上传。
func (h *Handler) CreateStory(c *gin.Context) {
	fh, err := c.FormFile("media")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "media file is required"})
		return
	}
	ref, mediaType, err := h.saver.SaveMedia(fh)
	if err != nil {
		if errors.Is(err, upload.ErrUnsupportedMedia) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported media type"})
			return
		}
		log.Error().Err(err).Msg("save story media")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}
	story, err := h.storySvc.Create(
		auth.GetUserID(c),
		c.PostForm("caption"),
		c.PostForm("text"),
		[]service.StoryMediaRef{{Ref: ref, Type: mediaType}},
	)
	if err != nil {
		log.Error().Err(err).Msg("create story")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create story"})
		return
	}
	c.JSON(http.StatusOK, story)
}

// ListStories 返回全部未过期故事。
func (h *Handler) ListStories(c *gin.Context) {
	stories, err := h.storySvc.ListActive()
	if err != nil {
		log.Error().Err(err).Msg("list stories")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list stories"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stories": stories})
}

// GetStory 返回单个故事。
func (h *Handler) GetStory(c *gin.Context) {
	storyID, ok := pathID(c, "id")
	if !ok {
		return
	}
	story, err := h.storySvc.Get(storyID)
	if err != nil {
		h.storyError(c, storyID, err, "get story")
		return
	}
	c.JSON(http.StatusOK, story)
}

// ViewStory 登记一次观看，重复观看不重复计数。
func (h *Handler) ViewStory(c *gin.Context) {
	storyID, ok := pathID(c, "id")
	if !ok {
		return
	}
	story, err := h.storySvc.View(storyID, auth.GetUserID(c))
	if err != nil {
		h.storyError(c, storyID, err, "view story")
		return
	}
	c.JSON(http.StatusOK, story)
}

// DeleteStory 删除故事。
func (h *Handler) DeleteStory(c *gin.Context) {
	storyID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.storySvc.Delete(storyID); err != nil {
		h.storyError(c, storyID, err, "delete story")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) storyError(c *gin.Context, storyID uint, err error, op string) {
	if errors.Is(err, service.ErrStoryNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "story not found"})
		return
	}
	log.Error().Err(err).Uint("story_id", storyID).Msg(op)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "request failed"})
}

// SaveContact 保存通讯录条目。
func (h *Handler) SaveContact(c *gin.Context) {
	var in service.ContactInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if strings.TrimSpace(in.FirstName) == "" || strings.TrimSpace(in.PhoneNumber) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "first name and phone number are required"})
		return
	}
	contact, err := h.contactSvc.Save(auth.GetUserID(c), in)
	if err != nil {
		log.Error().Err(err).Msg("save contact")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save contact"})
		return
	}
	c.JSON(http.StatusOK, contact)
}

// ListContacts 返回当前用户的通讯录。
func (h *Handler) ListContacts(c *gin.Context) {
	contacts, err := h.contactSvc.List(auth.GetUserID(c))
	if err != nil {
		log.Error().Err(err).Msg("list contacts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list contacts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"contacts": contacts})
}

// DeleteContact 删除当前用户的通讯录条目。
func (h *Handler) DeleteContact(c *gin.Context) {
	contactID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.contactSvc.Delete(auth.GetUserID(c), contactID); err != nil {
		if errors.Is(err, service.ErrContactNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "contact not found"})
			return
		}
		log.Error().Err(err).Uint("contact_id", contactID).Msg("delete contact")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete contact"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListWallpapers 返回壁纸目录。
func (h *Handler) ListWallpapers(c *gin.Context) {
	wallpapers, err := h.wallpaperSvc.List()
	if err != nil {
		log.Error().Err(err).Msg("list wallpapers")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list wallpapers"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"wallpapers": wallpapers})
}

// CreateWallpaper 新增壁纸。
func (h *Handler) CreateWallpaper(c *gin.Context) {
	var req struct {
		Name  string `json:"name"`
		Image string `json:"image"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Image) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	w, err := h.wallpaperSvc.Create(req.Name, req.Image)
	if err != nil {
		log.Error().Err(err).Msg("create wallpaper")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create wallpaper"})
		return
	}
	c.JSON(http.StatusOK, w)
}

// ActivateWallpaper 把指定壁纸设为当前激活。
func (h *Handler) ActivateWallpaper(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	w, err := h.wallpaperSvc.SetActive(id)
	if err != nil {
		if errors.Is(err, service.ErrWallpaperNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "wallpaper not found"})
			return
		}
		log.Error().Err(err).Uint("wallpaper_id", id).Msg("activate wallpaper")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to activate wallpaper"})
		return
	}
	c.JSON(http.StatusOK, w)
}

func pathID(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil || v <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(v), true
}
