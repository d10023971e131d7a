package alerts

import (
	"fmt"
	"sync"
	"time"

	"finz_backend/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// DefaultDebounceWindow is the minimum gap between two push
// notifications to the same user.
const DefaultDebounceWindow = 5 * time.Minute

// Notifier delivers an aggregated notification to one user.
// Dispatch is fire-and-forget: a failure is logged and never rolls
// back the cycle's latch commit.
type Notifier interface {
	Send(userID uint, title, body string) error
}

// Broadcaster pushes activation events to live listeners (WebSocket)
type Broadcaster interface {
	BroadcastAlerts(userID uint, messages []string)
}

// Event is one activation or range-exit emitted during a cycle
type Event struct {
	RuleKey string `json:"rule_key"`
	UserID  uint   `json:"user_id"`
	Message string `json:"message"`
}

// Result summarizes one evaluation cycle for a scope
type Result struct {
	Evaluated int     `json:"evaluated"`
	Events    []Event `json:"events"`
}

// Config tunes the alert service. Zero values select the defaults.
type Config struct {
	// DirectionalPercent makes percent alerts honor the threshold's
	// sign instead of comparing magnitudes. Off by default, matching
	// the long-standing behavior.
	DirectionalPercent bool
	DebounceWindow     time.Duration
	Now                func() time.Time
	Broadcaster        Broadcaster
}

// Service evaluates alert rules on a schedule and owns the per-process
// notification debounce state. One instance per process; tests build
// isolated instances.
type Service struct {
	db       *gorm.DB
	quotes   QuoteSource
	notifier Notifier
	cfg      Config

	mu           sync.Mutex
	lastNotified map[uint]time.Time
}

// NewService creates an alert service
func NewService(db *gorm.DB, quotes QuoteSource, notifier Notifier, cfg Config) *Service {
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = DefaultDebounceWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		db:           db,
		quotes:       quotes,
		notifier:     notifier,
		cfg:          cfg,
		lastNotified: make(map[uint]time.Time),
	}
}

// latchChange is one pending triggered_at update, applied in a single
// transaction at the end of the scope so a crash mid-cycle leaves all
// latches in their pre-cycle state.
type latchChange struct {
	model interface{}
	id    uint
	value *time.Time
}

// EvaluateAll evaluates every user that has at least one active alert
func (s *Service) EvaluateAll() error {
	userIDs, err := s.activeUserIDs()
	if err != nil {
		return fmt.Errorf("load alert users: %w", err)
	}

	for _, userID := range userIDs {
		if _, err := s.EvaluateUser(userID); err != nil {
			// one user's failed batch must not starve the rest
			log.Error().Uint("user_id", userID).Err(err).Msg("alert evaluation failed for user")
		}
	}
	return nil
}

// EvaluateUser runs one evaluation cycle for a single user: load the
// active rules, resolve market values through a fresh snapshot, collect
// events, commit latch transitions as one batch, then dispatch at most
// one debounced notification.
func (s *Service) EvaluateUser(userID uint) (*Result, error) {
	rules, err := s.loadRules(userID)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	snap := NewSnapshot(s.quotes)
	now := s.cfg.Now()

	var events []Event
	var changes []latchChange

	for _, rule := range rules {
		transition := rule.Evaluate(snap)

		switch transition.Kind {
		case TransitionActivated:
			ts := now
			changes = append(changes, s.changeFor(rule, &ts))
			events = append(events, Event{RuleKey: rule.Key(), UserID: rule.OwnerID(), Message: transition.Message})
		case TransitionExited:
			changes = append(changes, s.changeFor(rule, nil))
			events = append(events, Event{RuleKey: rule.Key(), UserID: rule.OwnerID(), Message: transition.Message})
		case TransitionCleared:
			changes = append(changes, s.changeFor(rule, nil))
		}
	}

	if len(changes) > 0 {
		if err := s.commitLatches(changes); err != nil {
			return nil, fmt.Errorf("commit latch changes: %w", err)
		}
	}

	if len(events) > 0 {
		if s.cfg.Broadcaster != nil {
			s.cfg.Broadcaster.BroadcastAlerts(userID, messagesOf(events))
		}
		s.dispatch(userID, events, now)
	}

	return &Result{Evaluated: len(rules), Events: events}, nil
}

// changeFor maps a rule back to its table for the latch update
func (s *Service) changeFor(rule Rule, value *time.Time) latchChange {
	switch r := rule.(type) {
	case SimpleRule:
		return latchChange{model: &models.SimpleAlert{}, id: r.Alert.ID, value: value}
	case RangeRule:
		return latchChange{model: &models.RangeAlert{}, id: r.Alert.ID, value: value}
	case PercentRule:
		return latchChange{model: &models.PercentAlert{}, id: r.Alert.ID, value: value}
	case CompositeRule:
		return latchChange{model: &models.CompositeAlert{}, id: r.Alert.ID, value: value}
	default:
		return latchChange{}
	}
}

// commitLatches applies all latch transitions of the scope atomically
func (s *Service) commitLatches(changes []latchChange) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, change := range changes {
			if change.model == nil {
				continue
			}
			err := tx.Model(change.model).
				Where("id = ?", change.id).
				Update("triggered_at", change.value).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// dispatch sends one aggregated notification unless the user was
// already notified within the debounce window. Debounce state is
// in-memory only and resets on restart.
func (s *Service) dispatch(userID uint, events []Event, now time.Time) {
	s.mu.Lock()
	last, seen := s.lastNotified[userID]
	if seen && now.Sub(last) < s.cfg.DebounceWindow {
		s.mu.Unlock()
		log.Debug().Uint("user_id", userID).Int("events", len(events)).
			Msg("notification debounced")
		return
	}
	s.lastNotified[userID] = now
	s.mu.Unlock()

	title := fmt.Sprintf("%d alert(s) triggered", len(events))
	body := renderBody(messagesOf(events))

	if err := s.notifier.Send(userID, title, body); err != nil {
		log.Warn().Uint("user_id", userID).Err(err).Msg("notification dispatch failed")
	}
}

// renderBody inlines up to three messages; beyond that, the first plus
// a summary line.
func renderBody(messages []string) string {
	if len(messages) <= 3 {
		body := ""
		for i, m := range messages {
			if i > 0 {
				body += "\n"
			}
			body += m
		}
		return body
	}
	return fmt.Sprintf("%s\n... and %d more", messages[0], len(messages)-1)
}

func messagesOf(events []Event) []string {
	messages := make([]string, len(events))
	for i, e := range events {
		messages[i] = e.Message
	}
	return messages
}

// loadRules loads the user's active alerts of all four kinds
func (s *Service) loadRules(userID uint) ([]Rule, error) {
	var rules []Rule

	var simple []models.SimpleAlert
	if err := s.db.Where("user_id = ? AND active = ?", userID, true).Find(&simple).Error; err != nil {
		return nil, err
	}
	for i := range simple {
		rules = append(rules, SimpleRule{Alert: &simple[i]})
	}

	var ranges []models.RangeAlert
	if err := s.db.Where("user_id = ? AND active = ?", userID, true).Find(&ranges).Error; err != nil {
		return nil, err
	}
	for i := range ranges {
		rules = append(rules, RangeRule{Alert: &ranges[i]})
	}

	var percents []models.PercentAlert
	if err := s.db.Where("user_id = ? AND active = ?", userID, true).Find(&percents).Error; err != nil {
		return nil, err
	}
	for i := range percents {
		rules = append(rules, PercentRule{Alert: &percents[i], Directional: s.cfg.DirectionalPercent})
	}

	var composites []models.CompositeAlert
	err := s.db.Preload("Conditions").
		Where("user_id = ? AND active = ?", userID, true).
		Find(&composites).Error
	if err != nil {
		return nil, err
	}
	for i := range composites {
		rules = append(rules, CompositeRule{Alert: &composites[i]})
	}

	return rules, nil
}

// activeUserIDs returns the distinct owners of active alerts
func (s *Service) activeUserIDs() ([]uint, error) {
	set := make(map[uint]bool)

	for _, model := range []interface{}{
		&models.SimpleAlert{}, &models.RangeAlert{},
		&models.PercentAlert{}, &models.CompositeAlert{},
	} {
		var ids []uint
		err := s.db.Model(model).
			Distinct("user_id").
			Where("active = ?", true).
			Pluck("user_id", &ids).Error
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			set[id] = true
		}
	}

	ids := make([]uint, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids, nil
}
