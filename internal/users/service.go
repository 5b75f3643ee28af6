package users

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
)

// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
var ErrInvalidIdentity = errors.New("users: invalid identity")

// ServiceConfig describes the dependencies required for the identity directory.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service keeps a local directory of user profiles sourced from token claims.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	cache sync.Map
}

// NewService constructs the identity service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:  cfg.Database,
		now: clock,
	}, nil
}

// Touch records the latest profile claims for a user, creating the identity
// row when the user has not been seen before.
func (s *Service) Touch(userID, displayName, email string) error {
	userID = normalize(userID)
	if userID == "" {
		return ErrInvalidIdentity
	}

	var identity Identity
	err := s.db.Where("user_id = ?", userID).First(&identity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		identity = Identity{
			UserID:      userID,
			DisplayName: normalize(displayName),
			Email:       normalize(email),
			LastSeenAt:  s.now(),
		}
		if err := s.db.Create(&identity).Error; err != nil {
			return err
		}
	} else if err != nil {
		return err
	} else {
		updates := map[string]interface{}{"last_seen_at": s.now()}
		if name := normalize(displayName); name != "" && name != identity.DisplayName {
			updates["display_name"] = name
			identity.DisplayName = name
		}
		if address := normalize(email); address != "" && address != identity.Email {
			updates["email"] = address
		}
		if err := s.db.Model(&Identity{}).Where("user_id = ?", userID).Updates(updates).Error; err != nil {
			return err
		}
	}

	s.cache.Store(userID, identity.DisplayName)
	return nil
}

// DisplayName resolves the stored display name for a user, falling back to
// the raw identifier when the user has never been seen.
func (s *Service) DisplayName(userID string) string {
	if cached, ok := s.cache.Load(userID); ok {
		if name, ok := cached.(string); ok && name != "" {
			return name
		}
	}

	var identity Identity
	err := s.db.Where("user_id = ?", userID).First(&identity).Error
	if err != nil || identity.DisplayName == "" {
		return userID
	}
	s.cache.Store(userID, identity.DisplayName)
	return identity.DisplayName
}

// DisplayNames resolves display names for a batch of user ids in one query.
func (s *Service) DisplayNames(userIDs []string) (map[string]string, error) {
	names := make(map[string]string, len(userIDs))
	if len(userIDs) == 0 {
		return names, nil
	}

	var identities []Identity
	if err := s.db.Where("user_id IN ?", userIDs).Find(&identities).Error; err != nil {
		return nil, err
	}
	for _, identity := range identities {
		if identity.DisplayName != "" {
			names[identity.UserID] = identity.DisplayName
		}
	}
	for _, userID := range userIDs {
		if _, ok := names[userID]; !ok {
			names[userID] = userID
		}
	}
	return names, nil
}
