package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

// Users implements UserRepository and SensorRepository on a DocumentStore.
type Users struct {
	store DocumentStore
}

func NewUsers(store DocumentStore) *Users {
	return &Users{store: store}
}

// GetSettings returns the user's settings, persisting defaults on first access.
func (u *Users) GetSettings(ctx context.Context, userID string) (models.AlertSettings, error) {
	var s models.AlertSettings
	found, err := u.store.Get(ctx, SettingsPath(userID), &s)
	if err != nil {
		return models.AlertSettings{}, err
	}
	if found {
		return s, nil
	}

	s = models.DefaultAlertSettings()
	if err := u.store.Set(ctx, SettingsPath(userID), s); err != nil {
		return models.AlertSettings{}, fmt.Errorf("create default settings: %w", err)
	}
	return s, nil
}

func (u *Users) SaveSettings(ctx context.Context, userID string, s models.AlertSettings) error {
	return u.store.Set(ctx, SettingsPath(userID), s)
}

func (u *Users) DeleteSettings(ctx context.Context, userID string) error {
	return u.store.Delete(ctx, SettingsPath(userID))
}

func (u *Users) ListEnabledUserIDs(ctx context.Context) ([]string, error) {
	ids, err := u.store.Children(ctx, "users")
	if err != nil {
		return nil, err
	}

	var enabled []string
	for _, id := range ids {
		var s models.AlertSettings
		found, err := u.store.Get(ctx, SettingsPath(id), &s)
		if err != nil {
			return nil, err
		}
		if found && s.Enabled {
			enabled = append(enabled, id)
		}
	}
	return enabled, nil
}

func (u *Users) TouchLastChecked(ctx context.Context, userID string, ts time.Time) error {
	return u.store.Update(ctx, SettingsPath(userID), map[string]any{"lastCheckedAt": ts})
}

func (u *Users) TouchLastAlertSent(ctx context.Context, userID string, ts time.Time) error {
	return u.store.Update(ctx, SettingsPath(userID), map[string]any{"lastAlertSentAt": ts})
}

func (u *Users) ListLocations(ctx context.Context, userID string) ([]models.MonitoredLocation, error) {
	entries, err := u.store.List(ctx, LocationsPath(userID))
	if err != nil {
		return nil, err
	}

	locations := make([]models.MonitoredLocation, 0, len(entries))
	for _, e := range entries {
		var loc models.MonitoredLocation
		if err := json.Unmarshal(e.Value, &loc); err != nil {
			return nil, fmt.Errorf("decode location %s: %w", e.Key, err)
		}
		if loc.ID == "" {
			loc.ID = e.Key
		}
		locations = append(locations, loc)
	}
	return locations, nil
}

func (u *Users) GetLocation(ctx context.Context, userID, locationID string) (*models.MonitoredLocation, error) {
	var loc models.MonitoredLocation
	found, err := u.store.Get(ctx, LocationPath(userID, locationID), &loc)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("location %s: %w", locationID, ErrNotFound)
	}
	return &loc, nil
}

func (u *Users) SaveLocation(ctx context.Context, userID string, loc models.MonitoredLocation) error {
	return u.store.Set(ctx, LocationPath(userID, loc.ID), loc)
}

func (u *Users) DeleteLocation(ctx context.Context, userID, locationID string) error {
	if err := u.store.Delete(ctx, LocationPath(userID, locationID)); err != nil {
		return err
	}
	return u.store.Delete(ctx, AlertsPath(userID, locationID))
}

// SetLocationStatus, SetLocationLastAlert and the Touch methods only modify
// existing documents. A settings or location document deleted while a cycle
// was running stays deleted and the write returns ErrNotFound.
func (u *Users) SetLocationStatus(ctx context.Context, userID, locationID string, status models.Severity, ts time.Time) error {
	return u.store.Update(ctx, LocationPath(userID, locationID), map[string]any{
		"status":          status,
		"statusUpdatedAt": ts,
	})
}

func (u *Users) SetLocationLastAlert(ctx context.Context, userID, locationID string, ts time.Time) error {
	return u.store.Update(ctx, LocationPath(userID, locationID), map[string]any{"lastAlertAt": ts})
}

func (u *Users) AppendAlert(ctx context.Context, event models.AlertEvent) (string, error) {
	return u.store.Push(ctx, AlertsPath(event.UserID, event.LocationID), event)
}

// ListAlerts returns up to limit alerts for a location, newest first.
func (u *Users) ListAlerts(ctx context.Context, userID, locationID string, limit int) ([]models.AlertEvent, error) {
	entries, err := u.store.List(ctx, AlertsPath(userID, locationID))
	if err != nil {
		return nil, err
	}
	slices.Reverse(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	events := make([]models.AlertEvent, 0, len(entries))
	for _, e := range entries {
		var ev models.AlertEvent
		if err := json.Unmarshal(e.Value, &ev); err != nil {
			return nil, fmt.Errorf("decode alert %s: %w", e.Key, err)
		}
		if ev.ID == "" {
			ev.ID = e.Key
		}
		events = append(events, ev)
	}
	return events, nil
}

type chatLink struct {
	ChatID int64 `json:"chatId"`
}

func (u *Users) GetChatID(ctx context.Context, userID string) (int64, bool, error) {
	var link chatLink
	found, err := u.store.Get(ctx, ChatPath(userID), &link)
	if err != nil || !found || link.ChatID == 0 {
		return 0, false, err
	}
	return link.ChatID, true, nil
}

// ResolveChatID lets Users serve as the chat channel's resolver.
func (u *Users) ResolveChatID(ctx context.Context, userID string) (int64, bool, error) {
	return u.GetChatID(ctx, userID)
}

func (u *Users) SetChatID(ctx context.Context, userID string, chatID int64) error {
	return u.store.Set(ctx, ChatPath(userID), chatLink{ChatID: chatID})
}

func (u *Users) ListSensors(ctx context.Context) ([]models.SensorRecord, error) {
	entries, err := u.store.List(ctx, "sensors")
	if err != nil {
		return nil, err
	}

	sensors := make([]models.SensorRecord, 0, len(entries))
	for _, e := range entries {
		var rec models.SensorRecord
		if err := json.Unmarshal(e.Value, &rec); err != nil {
			return nil, fmt.Errorf("decode sensor %s: %w", e.Key, err)
		}
		if rec.ID == "" {
			rec.ID = e.Key
		}
		sensors = append(sensors, rec)
	}
	return sensors, nil
}

func (u *Users) SaveSensor(ctx context.Context, rec models.SensorRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("sensor id is required: %w", ErrInvalidPath)
	}
	return u.store.Set(ctx, SensorPath(rec.ID), rec)
}
