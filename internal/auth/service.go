package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var ErrRefreshRevoked = errors.New("refresh token revoked")

type Service struct {
	jwt         *JWTManager
	redisClient *redis.Client
}

func NewService(jwt *JWTManager, redisClient *redis.Client) *Service {
	return &Service{
		jwt:         jwt,
		redisClient: redisClient,
	}
}

func refreshKey(subjectID, tokenID string) string {
	return fmt.Sprintf("refresh:%s:%s", subjectID, tokenID)
}

// GenerateTokens issues a token pair and records the refresh token id in Redis.
func (s *Service) GenerateTokens(ctx context.Context, sub Subject) (*TokenPair, error) {
	pair, tokenID, err := s.jwt.GenerateTokenPair(sub)
	if err != nil {
		return nil, err
	}

	if err := s.redisClient.Set(ctx, refreshKey(sub.ID, tokenID), sub.Role, s.jwt.RefreshExpiry()).Err(); err != nil {
		return nil, fmt.Errorf("storing refresh token: %w", err)
	}

	return pair, nil
}

// RefreshTokens rotates a refresh token: the old one is revoked and a new pair is issued.
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh token: %w", err)
	}

	// DEL reports how many keys it removed, so a replayed token loses the race.
	deleted, err := s.redisClient.Del(ctx, refreshKey(claims.UserID, claims.TokenID)).Result()
	if err != nil {
		return nil, fmt.Errorf("revoking refresh token: %w", err)
	}
	if deleted == 0 {
		return nil, ErrRefreshRevoked
	}

	return s.GenerateTokens(ctx, Subject{ID: claims.UserID, Username: claims.Username, Role: claims.Role})
}

// Logout revokes every refresh token of the subject.
func (s *Service) Logout(ctx context.Context, subjectID string) error {
	pattern := refreshKey(subjectID, "*")
	iter := s.redisClient.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := s.redisClient.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("revoking %s: %w", iter.Val(), err)
		}
	}
	return iter.Err()
}

func (s *Service) ValidateAccessToken(token string) (*AccessClaims, error) {
	return s.jwt.ValidateAccessToken(token)
}
