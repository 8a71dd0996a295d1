package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-admin-api/internal/dto"
	"github.com/noah-isme/academy-admin-api/internal/models"
	appErrors "github.com/noah-isme/academy-admin-api/pkg/errors"
)

// Setting defaults.
const (
	DefaultRegNumberPrefix = "ACCDT"
	DefaultSchoolName      = "Academy"
)

var regPrefixPattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,10}$`)

type settingRepository interface {
	ListByKeys(ctx context.Context, keys []string) ([]models.Setting, error)
	Get(ctx context.Context, key string) (*models.Setting, error)
	Upsert(ctx context.Context, setting *models.Setting) error
	BulkUpsert(ctx context.Context, settings []models.Setting) error
}

// SettingStore is the read/write contract consumed by other services.
type SettingStore interface {
	Get(ctx context.Context, key, def string) (string, error)
	Set(ctx context.Context, key, value, description string) (*models.Setting, error)
}

type knownSetting struct {
	Key         string
	Default     string
	Description string
	normalize   func(string) (string, error)
}

var knownSettingKeys = []string{models.SettingRegNumberPrefix, models.SettingSchoolName}

var knownSettings = map[string]knownSetting{
	models.SettingRegNumberPrefix: {
		Key:         models.SettingRegNumberPrefix,
		Default:     DefaultRegNumberPrefix,
		Description: "Prefix used for generated registration numbers",
		normalize:   normalizeRegPrefix,
	},
	models.SettingSchoolName: {
		Key:         models.SettingSchoolName,
		Default:     DefaultSchoolName,
		Description: "School name shown on exports and reports",
		normalize:   normalizeSchoolName,
	},
}

// SettingService manages runtime settings.
type SettingService struct {
	repo      settingRepository
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSettingService constructs a SettingService.
func NewSettingService(repo settingRepository, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *SettingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// Get returns the stored value for key or def when the row is missing.
func (s *SettingService) Get(ctx context.Context, key, def string) (string, error) {
	setting, err := s.repo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return def, nil
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read setting")
	}
	return setting.Value, nil
}

// Set validates and upserts a setting. Known keys are normalised first.
func (s *SettingService) Set(ctx context.Context, key, value, description string) (*models.Setting, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "setting key is required")
	}
	if meta, ok := knownSettings[key]; ok {
		normalized, err := meta.normalize(value)
		if err != nil {
			return nil, err
		}
		value = normalized
		if description == "" {
			description = meta.Description
		}
	}
	setting := &models.Setting{Key: key, Value: value, Description: strPtr(description)}
	if err := s.repo.Upsert(ctx, setting); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save setting")
	}
	return setting, nil
}

// RegistrationPrefix returns the configured prefix or the default.
func (s *SettingService) RegistrationPrefix(ctx context.Context) (string, error) {
	value, err := s.Get(ctx, models.SettingRegNumberPrefix, DefaultRegNumberPrefix)
	if err != nil {
		return "", err
	}
	if value == "" {
		return DefaultRegNumberPrefix, nil
	}
	return value, nil
}

// List returns every known setting with stored or default values.
func (s *SettingService) List(ctx context.Context) ([]dto.SettingItem, error) {
	rows, err := s.repo.ListByKeys(ctx, knownSettingKeys)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list settings")
	}
	existing := make(map[string]models.Setting, len(rows))
	for _, row := range rows {
		existing[row.Key] = row
	}
	items := make([]dto.SettingItem, 0, len(knownSettingKeys))
	for _, key := range knownSettingKeys {
		items = append(items, toSettingItem(knownSettings[key], existing[key]))
	}
	return items, nil
}

// Item returns one known setting.
func (s *SettingService) Item(ctx context.Context, key string) (*dto.SettingItem, error) {
	meta, err := requireKnownSetting(key)
	if err != nil {
		return nil, err
	}
	row, err := s.repo.Get(ctx, key)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to get setting")
	}
	var stored models.Setting
	if row != nil {
		stored = *row
	}
	item := toSettingItem(meta, stored)
	return &item, nil
}

// Update changes one known setting and records an audit entry.
func (s *SettingService) Update(ctx context.Context, req dto.UpdateSettingRequest, actor *models.JWTClaims) (*dto.SettingItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid setting payload")
	}
	meta, err := requireKnownSetting(req.Key)
	if err != nil {
		return nil, err
	}
	previous, err := s.Get(ctx, req.Key, meta.Default)
	if err != nil {
		return nil, err
	}
	saved, err := s.Set(ctx, req.Key, req.Value, "")
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, actor, req.Key, previous, saved.Value)
	item := toSettingItem(meta, *saved)
	return &item, nil
}

// BulkUpdate validates every item first and then upserts them together.
func (s *SettingService) BulkUpdate(ctx context.Context, req dto.BulkUpdateSettingRequest, actor *models.JWTClaims) ([]dto.SettingItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid bulk payload")
	}
	rows := make([]models.Setting, 0, len(req.Items))
	for _, item := range req.Items {
		meta, err := requireKnownSetting(item.Key)
		if err != nil {
			return nil, err
		}
		value, err := meta.normalize(item.Value)
		if err != nil {
			return nil, err
		}
		rows = append(rows, models.Setting{Key: meta.Key, Value: value, Description: strPtr(meta.Description)})
	}
	if err := s.repo.BulkUpsert(ctx, rows); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to bulk update settings")
	}
	items := make([]dto.SettingItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, toSettingItem(knownSettings[row.Key], row))
		s.emitAudit(ctx, actor, row.Key, "", row.Value)
	}
	return items, nil
}

func (s *SettingService) emitAudit(ctx context.Context, actor *models.JWTClaims, key, oldValue, newValue string) {
	if s.audit == nil {
		return
	}
	log := models.NewAuditLog(models.AuditActionSettingUpdate, "setting").
		ByClaims(actor).On(key).FromSystem("setting-service").
		Change(map[string]string{"key": key, "value": oldValue}, map[string]string{"key": key, "value": newValue})
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record setting audit", zap.Error(err))
	}
}

func requireKnownSetting(key string) (knownSetting, error) {
	meta, ok := knownSettings[key]
	if !ok {
		return knownSetting{}, appErrors.Clone(appErrors.ErrValidation, "unsupported setting key")
	}
	return meta, nil
}

func toSettingItem(meta knownSetting, row models.Setting) dto.SettingItem {
	item := dto.SettingItem{Key: meta.Key, Value: meta.Default, Default: meta.Default, Description: meta.Description}
	if row.Key != "" {
		item.Value = row.Value
		if row.Description != nil && *row.Description != "" {
			item.Description = *row.Description
		}
	}
	return item
}

func normalizeRegPrefix(value string) (string, error) {
	value = strings.TrimSpace(value)
	if !regPrefixPattern.MatchString(value) {
		return "", appErrors.Clone(appErrors.ErrValidation, "reg_number_prefix must be 1-10 letters, digits or underscores")
	}
	return strings.ToUpper(value), nil
}

func normalizeSchoolName(value string) (string, error) {
	value = strings.TrimSpace(value)
	if n := utf8.RuneCountInString(value); n < 1 || n > 100 {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("school_name must be 1-100 characters, got %d", n))
	}
	return value, nil
}
