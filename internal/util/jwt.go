package util

import (
	"errors"
	"groupboard-backend/config"
	"groupboard-backend/internal/model"
	"time"

	"github.com/dgrijalva/jwt-go"
)

// GenerateToken 为平台身份签发访问令牌，供工具和测试使用
func GenerateToken(identity model.Identity) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":      identity.UserID,
		"email":        identity.Email,
		"first_name":   identity.FirstName,
		"last_name":    identity.LastName,
		"display_name": identity.DisplayName,
		"photo_url":    identity.PhotoURL,
		"role":         identity.Role,
		"exp":          time.Now().Add(time.Hour * 24).Unix(),
	})

	return token.SignedString([]byte(config.AppConfig.JWTSecret))
}

func ValidateToken(tokenString string) (*model.Identity, error) {
	if tokenString == "" {
		return nil, errors.New("令牌为空")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("不支持的签名算法")
		}
		return []byte(config.AppConfig.JWTSecret), nil
	})

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("无效的令牌")
	}

	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return nil, errors.New("无效的用户ID")
	}
	identity := &model.Identity{UserID: userID}
	identity.Email, _ = claims["email"].(string)
	identity.FirstName, _ = claims["first_name"].(string)
	identity.LastName, _ = claims["last_name"].(string)
	identity.DisplayName, _ = claims["display_name"].(string)
	identity.PhotoURL, _ = claims["photo_url"].(string)
	identity.Role, _ = claims["role"].(string)
	return identity, nil
}
