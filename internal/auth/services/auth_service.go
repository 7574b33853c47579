package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/medilink/clinic-queue-backend/internal/queue/models"
	"github.com/medilink/clinic-queue-backend/pkg/utils"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

// AuthService authenticates station operators. The queue system only
// needs enough identity to attribute commands; employee management
// itself lives elsewhere.
type AuthService struct {
	DB       *sql.DB
	TokenTTL time.Duration
}

func NewAuthService(db *sql.DB) *AuthService {
	return &AuthService{DB: db, TokenTTL: 12 * time.Hour}
}

type Operator struct {
	EmployeeID    string             `json:"employee_id"`
	Username      string             `json:"username"`
	FullName      string             `json:"full_name"`
	Role          string             `json:"role"`
	StationType   models.StationType `json:"station_type,omitempty"`
	StationNumber int                `json:"station_number,omitempty"`
}

// Login verifies credentials and issues an operator token.
func (as *AuthService) Login(ctx context.Context, username, password string) (*Operator, string, error) {
	var (
		op            Operator
		passwordHash  string
		stationType   sql.NullString
		stationNumber sql.NullInt64
	)
	err := as.DB.QueryRowContext(ctx, `
		SELECT id, username, password_hash, full_name, role, station_type, station_number
		FROM employees
		WHERE username = ?
	`, username).Scan(&op.EmployeeID, &op.Username, &passwordHash, &op.FullName, &op.Role, &stationType, &stationNumber)
	if err == sql.ErrNoRows {
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: employee lookup: %v", models.ErrTransientIO, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	if stationType.Valid {
		op.StationType = models.StationType(stationType.String)
	}
	if stationNumber.Valid {
		op.StationNumber = int(stationNumber.Int64)
	}

	token, err := utils.GenerateJWTToken(op.EmployeeID, op.Username, op.Role,
		op.StationType, op.StationNumber, time.Now().Add(as.TokenTTL))
	if err != nil {
		return nil, "", err
	}
	return &op, token, nil
}
