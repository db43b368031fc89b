package service

import (
	"errors"

	"messenger/internal/models"

	"gorm.io/gorm"
)

// WallpaperService 封装聊天壁纸目录的业务逻辑。
type WallpaperService struct {
	db *gorm.DB
}

func NewWallpaperService(db *gorm.DB) *WallpaperService {
	return &WallpaperService{db: db}
}

// List 返回全部壁纸。
func (s *WallpaperService) List() ([]models.Wallpaper, error) {
	var wallpapers []models.Wallpaper
	if err := s.db.Order("id asc").Find(&wallpapers).Error; err != nil {
		return nil, err
	}
	return wallpapers, nil
}

// Create 新增一张壁纸。
func (s *WallpaperService) Create(name, image string) (*models.Wallpaper, error) {
	w := models.Wallpaper{Name: name, Image: image}
	if err := s.db.Create(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

// SetActive 把指定壁纸设为当前激活，其余全部取消激活。
func (s *WallpaperService) SetActive(id uint) (*models.Wallpaper, error) {
	var w models.Wallpaper
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&w, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrWallpaperNotFound
			}
			return err
		}
		if err := tx.Model(&models.Wallpaper{}).Where("active = true").Update("active", false).Error; err != nil {
			return err
		}
		return tx.Model(&w).Update("active", true).Error
	})
	if err != nil {
		return nil, err
	}
	w.Active = true
	return &w, nil
}
