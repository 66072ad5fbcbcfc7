package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/mr1hm/go-flood-alerts/internal/models"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrInvalidPath = errors.New("invalid path")
)

// Entry is a direct child document of a path.
type Entry struct {
	Key   string
	Value json.RawMessage
}

// DocumentStore is a hierarchical key-path JSON document store.
type DocumentStore interface {
	Get(ctx context.Context, path string, dest any) (bool, error)
	Set(ctx context.Context, path string, value any) error
	// Push stores value under a generated, time-ordered child key and returns it.
	Push(ctx context.Context, path string, value any) (string, error)
	// Update shallow-merges the fields of partial into the document at path.
	// It never creates documents: a missing path returns ErrNotFound.
	Update(ctx context.Context, path string, partial map[string]any) error
	// Delete removes path and all of its descendants.
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, path string) ([]Entry, error)
	Children(ctx context.Context, path string) ([]string, error)
}

// UserRepository is the typed view of the store used by the engine and API.
type UserRepository interface {
	GetSettings(ctx context.Context, userID string) (models.AlertSettings, error)
	SaveSettings(ctx context.Context, userID string, s models.AlertSettings) error
	DeleteSettings(ctx context.Context, userID string) error
	ListEnabledUserIDs(ctx context.Context) ([]string, error)
	TouchLastChecked(ctx context.Context, userID string, ts time.Time) error
	TouchLastAlertSent(ctx context.Context, userID string, ts time.Time) error

	ListLocations(ctx context.Context, userID string) ([]models.MonitoredLocation, error)
	GetLocation(ctx context.Context, userID, locationID string) (*models.MonitoredLocation, error)
	SaveLocation(ctx context.Context, userID string, loc models.MonitoredLocation) error
	DeleteLocation(ctx context.Context, userID, locationID string) error
	SetLocationStatus(ctx context.Context, userID, locationID string, status models.Severity, ts time.Time) error
	SetLocationLastAlert(ctx context.Context, userID, locationID string, ts time.Time) error

	AppendAlert(ctx context.Context, event models.AlertEvent) (string, error)
	ListAlerts(ctx context.Context, userID, locationID string, limit int) ([]models.AlertEvent, error)

	GetChatID(ctx context.Context, userID string) (int64, bool, error)
	SetChatID(ctx context.Context, userID string, chatID int64) error
}

type SensorRepository interface {
	ListSensors(ctx context.Context) ([]models.SensorRecord, error)
	SaveSensor(ctx context.Context, rec models.SensorRecord) error
}

func SettingsPath(userID string) string {
	return joinPath("users", userID, "settings")
}

func LocationsPath(userID string) string {
	return joinPath("users", userID, "locations")
}

func LocationPath(userID, locationID string) string {
	return joinPath("users", userID, "locations", locationID)
}

func AlertsPath(userID, locationID string) string {
	return joinPath("users", userID, "alerts", locationID)
}

func ChatPath(userID string) string {
	return joinPath("users", userID, "chat")
}

func SensorPath(sensorID string) string {
	return joinPath("sensors", sensorID)
}

func joinPath(segments ...string) string {
	return strings.Join(segments, "/")
}

// cleanPath trims surrounding slashes and rejects empty segments.
func cleanPath(path string) (string, error) {
	p := strings.Trim(path, "/")
	if p == "" {
		return "", ErrInvalidPath
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", ErrInvalidPath
		}
	}
	return p, nil
}

func splitParent(path string) (parent, key string) {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}
