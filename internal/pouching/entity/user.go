package entity

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// User 系统用户
type User struct {
	ID           string    `json:"id" gorm:"primaryKey;size:32"`
	Username     string    `json:"username" gorm:"size:64;uniqueIndex;not null"`
	Email        string    `json:"email" gorm:"size:128;uniqueIndex"`
	PasswordHash string    `json:"-" gorm:"size:128"`
	Status       string    `json:"status" gorm:"size:20;default:'active'"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// SetPassword 设置密码哈希
func (u *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword 校验密码
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}
