package service

import (
	"errors"

	"messenger/internal/models"

	"gorm.io/gorm"
)

// ContactService 封装通讯录相关的业务逻辑。
type ContactService struct {
	db *gorm.DB
}

func NewContactService(db *gorm.DB) *ContactService {
	return &ContactService{db: db}
}

// ContactInput 是保存通讯录条目时的输入。
type ContactInput struct {
	FirstName   string `json:"first_name"`
	Surname     string `json:"surname"`
	Company     string `json:"company"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
	Picture     string `json:"picture"`
	Birthday    string `json:"birthday"`
}

// Save 为用户保存一条通讯录条目。
func (s *ContactService) Save(ownerID uint, in ContactInput) (*models.Contact, error) {
	contact := models.Contact{
		OwnerID:     ownerID,
		FirstName:   in.FirstName,
		Surname:     in.Surname,
		Company:     in.Company,
		PhoneNumber: in.PhoneNumber,
		Email:       in.Email,
		Picture:     in.Picture,
		Birthday:    in.Birthday,
	}
	if err := s.db.Create(&contact).Error; err != nil {
		return nil, err
	}
	return &contact, nil
}

// List 返回用户的全部通讯录条目。
func (s *ContactService) List(ownerID uint) ([]models.Contact, error) {
	var contacts []models.Contact
	if err := s.db.Where("owner_id = ?", ownerID).Order("first_name asc").Find(&contacts).Error; err != nil {
		return nil, err
	}
	return contacts, nil
}

// Delete 删除用户自己的通讯录条目。
func (s *ContactService) Delete(ownerID, contactID uint) error {
	res := s.db.Where("id = ? AND owner_id = ?", contactID, ownerID).Delete(&models.Contact{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrContactNotFound
	}
	return nil
}

// 保留给将来按 id 查询的入口。
func (s *ContactService) Get(ownerID, contactID uint) (*models.Contact, error) {
	var contact models.Contact
	err := s.db.Where("id = ? AND owner_id = ?", contactID, ownerID).First(&contact).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrContactNotFound
		}
		return nil, err
	}
	return &contact, nil
}
