package utils

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/medilink/clinic-queue-backend/internal/queue/models"
)

// Claims carries the operator identity attached to queue commands.
type Claims struct {
	EmployeeID    string             `json:"employee_id"`
	Username      string             `json:"username"`
	Role          string             `json:"role"`
	StationType   models.StationType `json:"station_type,omitempty"`
	StationNumber int                `json:"station_number,omitempty"`
	jwt.RegisteredClaims
}

// GenerateJWTToken signs an operator token expiring at exp.
func GenerateJWTToken(employeeID, username, role string, stationType models.StationType, stationNumber int, exp time.Time) (string, error) {
	jwtKey := []byte(os.Getenv("JWT_SECRET_KEY"))
	if len(jwtKey) == 0 {
		return "", fmt.Errorf("JWT secret key is missing")
	}

	claims := Claims{
		EmployeeID:    employeeID,
		Username:      username,
		Role:          role,
		StationType:   stationType,
		StationNumber: stationNumber,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(jwtKey)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

// ValidateJWTToken parses and verifies an operator token.
func ValidateJWTToken(tokenString string) (*Claims, error) {
	jwtKey := []byte(os.Getenv("JWT_SECRET_KEY"))
	if len(jwtKey) == 0 {
		return nil, fmt.Errorf("JWT secret key is missing")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return jwtKey, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
