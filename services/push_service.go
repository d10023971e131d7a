package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"finz_backend/models"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Push delivery constants
const (
	PushTTLSeconds      = 300
	PushSendTimeout     = 10 * time.Second
	PushVAPIDSubscriber = "mailto:alerts@finz.app"
)

// ErrNoSubscription marks a user with no registered push endpoint
var ErrNoSubscription = errors.New("no push subscription")

// pushPayload is the JSON body delivered to the service worker
type pushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// PushService delivers Web Push notifications to subscribed browsers
type PushService struct {
	db              *gorm.DB
	vapidPublicKey  string
	vapidPrivateKey string
}

// Global push service instance
var GlobalPushService *PushService

// InitPushService initializes the push service
func InitPushService(db *gorm.DB, vapidPublicKey, vapidPrivateKey string) error {
	if vapidPublicKey == "" || vapidPrivateKey == "" {
		log.Warn().Msg("VAPID keys not configured, push notifications disabled")
	}
	GlobalPushService = NewPushService(db, vapidPublicKey, vapidPrivateKey)
	log.Info().Msg("Push service initialized")
	return nil
}

// NewPushService creates a push service
func NewPushService(db *gorm.DB, vapidPublicKey, vapidPrivateKey string) *PushService {
	return &PushService{
		db:              db,
		vapidPublicKey:  vapidPublicKey,
		vapidPrivateKey: vapidPrivateKey,
	}
}

// PublicKey returns the VAPID public key clients subscribe with
func (s *PushService) PublicKey() string {
	return s.vapidPublicKey
}

// SaveSubscription stores or replaces the user's push subscription.
// One subscription per user; a new browser registration overwrites the
// previous one.
func (s *PushService) SaveSubscription(userID uint, subscription json.RawMessage) error {
	var parsed webpush.Subscription
	if err := json.Unmarshal(subscription, &parsed); err != nil {
		return fmt.Errorf("malformed subscription: %w", err)
	}
	if parsed.Endpoint == "" {
		return errors.New("subscription endpoint missing")
	}

	sub := models.PushSubscription{UserID: userID, Subscription: string(subscription)}

	var existing models.PushSubscription
	err := s.db.Where("user_id = ?", userID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.Create(&sub).Error
	}
	if err != nil {
		return err
	}
	return s.db.Model(&existing).Update("subscription", sub.Subscription).Error
}

// DeleteSubscription removes the user's push subscription
func (s *PushService) DeleteSubscription(userID uint) error {
	result := s.db.Where("user_id = ?", userID).Delete(&models.PushSubscription{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNoSubscription
	}
	return nil
}

// Send delivers one notification to the user's registered endpoint.
// A 404 or 410 from the push provider means the browser dropped the
// subscription; it is removed so we stop retrying a dead endpoint.
func (s *PushService) Send(userID uint, title, body string) error {
	if s.vapidPublicKey == "" || s.vapidPrivateKey == "" {
		log.Debug().Uint("user_id", userID).Msg("push disabled, notification skipped")
		return nil
	}

	var stored models.PushSubscription
	err := s.db.Where("user_id = ?", userID).First(&stored).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNoSubscription
	}
	if err != nil {
		return err
	}

	var sub webpush.Subscription
	if err := json.Unmarshal([]byte(stored.Subscription), &sub); err != nil {
		return fmt.Errorf("stored subscription corrupt: %w", err)
	}

	payload, err := json.Marshal(pushPayload{Title: title, Body: body})
	if err != nil {
		return err
	}

	resp, err := webpush.SendNotification(payload, &sub, &webpush.Options{
		HTTPClient:      &http.Client{Timeout: PushSendTimeout},
		Subscriber:      PushVAPIDSubscriber,
		VAPIDPublicKey:  s.vapidPublicKey,
		VAPIDPrivateKey: s.vapidPrivateKey,
		TTL:             PushTTLSeconds,
	})
	if err != nil {
		return fmt.Errorf("push delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		log.Info().Uint("user_id", userID).Msg("push subscription expired, removing")
		s.db.Where("user_id = ?", userID).Delete(&models.PushSubscription{})
		return ErrNoSubscription
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push provider status %d", resp.StatusCode)
	}
	return nil
}
