package services

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"

	"loo-finder/models"
	"loo-finder/utils/errors"
)

const tokenTTL = 24 * time.Hour

// Register creates a new user and returns its public id
func (s *UserService) Register(ctx context.Context, username, email, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || email == "" || len(password) < 8 {
		return "", errors.NewAPIError("INVALID_INPUT", "Username, email and a password of at least 8 characters are required", http.StatusBadRequest)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "HASH_ERROR", "failed to hash password", http.StatusInternalServerError)
	}

	user := models.User{
		PublicID:        uuid.New().String(),
		Username:        username,
		Email:           email,
		PasswordHash:    string(passwordHash),
		FavoriteToilets: []string{},
		LastLocation:    models.Coordinate{}.GeoJSON(),
	}

	if _, err := s.collection.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", errors.ErrConflict
		}
		return "", errors.Wrap(err, "DB_ERROR", "failed to create user in database", http.StatusInternalServerError)
	}

	s.cacheUser(ctx, user, userCacheTTL)
	return user.PublicID, nil
}

// Login authenticates a user and returns a JWT
func (s *UserService) Login(ctx context.Context, username, password string) (string, error) {
	var user models.User
	err := s.collection.FindOne(ctx, bson.M{"username": username}).Decode(&user)
	if err != nil {
		return "", errors.ErrNotFound
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", errors.NewAPIError("INVALID_CREDENTIALS", "Invalid username or password", http.StatusUnauthorized)
	}

	tokenString, err := IssueToken(s.jwtSecret, user, time.Now())
	if err != nil {
		return "", errors.Wrap(err, "JWT_ERROR", "Failed to generate token", http.StatusInternalServerError)
	}

	s.cacheUser(ctx, user, userCacheTTL)
	return tokenString, nil
}

// IssueToken signs an HS256 token carrying the user's public id.
func IssueToken(secret string, user models.User, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userID":   user.PublicID,
		"username": user.Username,
		"exp":      now.Add(tokenTTL).Unix(),
	})
	return token.SignedString([]byte(secret))
}
