package service

import (
	"errors"
	"time"

	"messenger/internal/models"

	"gorm.io/gorm"
)

// 故事默认 24 小时后过期。过期清理交给外部定时任务，
// 这里的查询始终过滤掉已过期的行。
const storyTTL = 24 * time.Hour

// StoryService 封装故事（限时动态）相关的业务逻辑。
type StoryService struct {
	db *gorm.DB
}

func NewStoryService(db *gorm.DB) *StoryService {
	return &StoryService{db: db}
}

// StoryDTO 是对外输出的故事数据。
type StoryDTO struct {
	ID        uint            `json:"id"`
	UserID    uint            `json:"user_id"`
	Caption   string          `json:"caption"`
	Text      string          `json:"text"`
	Media     []StoryMediaDTO `json:"media"`
	Views     int             `json:"views"`
	Viewers   []uint          `json:"viewers"`
	ExpiresAt time.Time       `json:"expires_at"`
	CreatedAt time.Time       `json:"created_at"`
}

type StoryMediaDTO struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// StoryMediaRef 是上传协作方返回的媒体引用。
type StoryMediaRef struct {
	Ref  string
	Type string
}

// Create 发布新故事，media 引用来自上传协作方。
func (s *StoryService) Create(userID uint, caption, text string, media []StoryMediaRef) (*StoryDTO, error) {
	story := models.Story{
		UserID:    userID,
		Caption:   caption,
		Text:      text,
		ExpiresAt: time.Now().Add(storyTTL),
	}
	for _, m := range media {
		story.Media = append(story.Media, models.StoryMedia{URL: m.Ref, Type: m.Type})
	}
	if err := s.db.Create(&story).Error; err != nil {
		return nil, err
	}
	return s.Get(story.ID)
}

// Get 返回单个故事，含观看统计。
func (s *StoryService) Get(storyID uint) (*StoryDTO, error) {
	var story models.Story
	if err := s.db.Preload("Media").First(&story, storyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStoryNotFound
		}
		return nil, err
	}
	return s.toDTO(&story)
}

// ListActive 返回全部未过期故事，最新的在前。
func (s *StoryService) ListActive() ([]StoryDTO, error) {
	var stories []models.Story
	if err := s.db.Preload("Media").Where("expires_at > ?", time.Now()).Order("id desc").Find(&stories).Error; err != nil {
		return nil, err
	}
	out := make([]StoryDTO, 0, len(stories))
	for i := range stories {
		dto, err := s.toDTO(&stories[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *dto)
	}
	return out, nil
}

// View 登记一次观看。同一观看者重复观看只计一次（story+viewer 唯一约束）。
func (s *StoryService) View(storyID, viewerID uint) (*StoryDTO, error) {
	var story models.Story
	if err := s.db.First(&story, storyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStoryNotFound
		}
		return nil, err
	}
	var count int64
	if err := s.db.Model(&models.StoryViewer{}).Where("story_id = ? AND viewer_id = ?", storyID, viewerID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		viewer := models.StoryViewer{StoryID: storyID, ViewerID: viewerID, ViewedAt: time.Now()}
		if err := s.db.Create(&viewer).Error; err != nil {
			return nil, err
		}
	}
	return s.Get(storyID)
}

// Delete 删除故事及其观看记录。
func (s *StoryService) Delete(storyID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var story models.Story
		if err := tx.First(&story, storyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrStoryNotFound
			}
			return err
		}
		if err := tx.Where("story_id = ?", storyID).Delete(&models.StoryMedia{}).Error; err != nil {
			return err
		}
		if err := tx.Where("story_id = ?", storyID).Delete(&models.StoryViewer{}).Error; err != nil {
			return err
		}
		return tx.Delete(&story).Error
	})
}

func (s *StoryService) toDTO(story *models.Story) (*StoryDTO, error) {
	var viewers []uint
	if err := s.db.Model(&models.StoryViewer{}).Where("story_id = ?", story.ID).Order("id asc").Pluck("viewer_id", &viewers).Error; err != nil {
		return nil, err
	}
	dto := &StoryDTO{
		ID:        story.ID,
		UserID:    story.UserID,
		Caption:   story.Caption,
		Text:      story.Text,
		Media:     []StoryMediaDTO{},
		Views:     len(viewers),
		Viewers:   viewers,
		ExpiresAt: story.ExpiresAt,
		CreatedAt: story.CreatedAt,
	}
	for _, m := range story.Media {
		dto.Media = append(dto.Media, StoryMediaDTO{URL: m.URL, Type: m.Type})
	}
	return dto, nil
}
