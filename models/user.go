package models

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/maresto/inventory_backend/config"
	"github.com/maresto/inventory_backend/utils"
)

type User struct {
	ID        uuid.UUID `gorm:"type:varchar(36);primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Email     string    `gorm:"size:100;not null;uniqueIndex" json:"email"`
	Password  string    `gorm:"size:255;not null" json:"-"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// OauthAccessToken backs an issued JWT; its ID is the token's jti.
type OauthAccessToken struct {
	ID        string    `gorm:"type:varchar(36);primary_key" json:"id"`
	UserId    uuid.UUID `gorm:"type:varchar(36);index;not null" json:"user_id"`
	Revoked   bool      `gorm:"not null;default:false" json:"revoked"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NewUser struct {
	Name     string `json:"name" binding:"required,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

/*
caches:
	OauthAccessToken:$jti
*/

func accessTokenCacheKey(tokenId string) string {
	return "OauthAccessToken:" + tokenId
}

// GetUsers lists login users; the system actor is not one.
func GetUsers(ctx context.Context) ([]*User, error) {
	db := config.GetDB()
	var results []*User
	err := db.WithContext(ctx).Where("id <> ?", utils.SystemActorId).Order("created_at").Order("id").Find(&results).Error
	if err != nil {
		return nil, utils.Persistence("users", err)
	}
	return results, nil
}

func GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return utils.FetchSingleModel[User](ctx, id)
}

// EnsureSystemActor creates the user every automatic stock deduction is attributed to.
func EnsureSystemActor(ctx context.Context) error {
	db := config.GetDB()
	var count int64
	if err := db.WithContext(ctx).Model(&User{}).Where("id = ?", utils.SystemActorId).Count(&count).Error; err != nil {
		return utils.Persistence("users", err)
	}
	if count > 0 {
		return nil
	}
	// random password: the system actor never logs in
	hashed, err := utils.HashPassword(uuid.NewString())
	if err != nil {
		return err
	}
	user := User{
		ID:       utils.SystemActorId,
		Name:     "System",
		Email:    "system@inventory.local",
		Password: hashed,
	}
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return utils.FromDBError("users", err)
	}
	return nil
}

// SaveUser creates the user or, when the email exists, resets name and password.
func SaveUser(ctx context.Context, input *NewUser) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, utils.Validation("email", "required")
	}
	if len(input.Password) < 8 {
		return nil, utils.Validation("password", "must be at least 8 characters")
	}
	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, utils.Persistence("password", err)
	}

	db := config.GetDB()
	var user User
	result := db.WithContext(ctx).Where("email = ?", email).Limit(1).Find(&user)
	if result.Error != nil {
		return nil, utils.Persistence("users", result.Error)
	}
	if result.RowsAffected > 0 {
		err = db.WithContext(ctx).Model(&user).Updates(map[string]interface{}{
			"Name":     input.Name,
			"Password": hashed,
		}).Error
		if err != nil {
			return nil, utils.Persistence("users", err)
		}
		return &user, nil
	}

	user = User{
		ID:       uuid.New(),
		Name:     input.Name,
		Email:    email,
		Password: hashed,
	}
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, utils.FromDBError("email", err)
	}
	return &user, nil
}

// IssueAccessToken records a token row and signs a JWT carrying its id as jti.
func IssueAccessToken(ctx context.Context, userId uuid.UUID) (string, *OauthAccessToken, error) {
	if _, err := GetUser(ctx, userId); err != nil {
		return "", nil, utils.PrefixField(err, "user_id")
	}
	record := OauthAccessToken{
		ID:        uuid.NewString(),
		UserId:    userId,
		ExpiresAt: time.Now().Add(utils.TokenLifespan()).UTC(),
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&record).Error; err != nil {
		return "", nil, utils.Persistence("oauth_access_tokens", err)
	}
	token, err := utils.JwtGenerate(userId, record.ID, record.ExpiresAt)
	if err != nil {
		return "", nil, err
	}
	return token, &record, nil
}

// FindActiveAccessToken returns the non-revoked, unexpired token row for jti (redis first, then db).
func FindActiveAccessToken(ctx context.Context, tokenId string) (*OauthAccessToken, error) {
	var record OauthAccessToken
	found, err := config.GetRedisObject(ctx, accessTokenCacheKey(tokenId), &record)
	if err != nil {
		config.LogError(config.GetLogger(), "User", "FindActiveAccessToken", "reading token cache", tokenId, err)
	}
	if !found {
		db := config.GetDB()
		result := db.WithContext(ctx).Where("id = ?", tokenId).Limit(1).Find(&record)
		if result.Error != nil {
			return nil, utils.Persistence("oauth_access_tokens", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil, utils.NotFound("token", "token not found")
		}
		if ttl := time.Until(record.ExpiresAt); ttl > 0 && !record.Revoked {
			if err := config.SetRedisObject(ctx, accessTokenCacheKey(tokenId), &record, ttl); err != nil {
				config.LogError(config.GetLogger(), "User", "FindActiveAccessToken", "writing token cache", tokenId, err)
			}
		}
	}
	if record.Revoked || !record.ExpiresAt.After(time.Now()) {
		return nil, utils.NotFound("token", "token expired or revoked")
	}
	return &record, nil
}
