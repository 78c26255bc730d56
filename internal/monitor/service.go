package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pulsewatch/pulsewatch/internal/api/models"
	"github.com/pulsewatch/pulsewatch/internal/uptime"
)

// Defaults applied on create.
const (
	DefaultInterval      = 60
	DefaultTimeoutSec    = 30
	DefaultAlertAfter    = 1
	DefaultRecoveryAfter = 1
)

// Validation constants.
const (
	MaxNameLength    = 100
	MinInterval      = 10
	MaxInterval      = 86400
	MaxTimeout       = 120
	MaxThreshold     = 10
	MaxPingCount     = 10
	DefaultPageLimit = 50
	MaxPageLimit     = 100
	DefaultBarDays   = 90
	MaxBarDays       = 365
	DefaultSeriesHrs = 24
	MaxSeriesHrs     = 30 * 24
)

var httpMethods = map[string]bool{
	"GET": true, "HEAD": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true, "OPTIONS": true,
}

// Service provides monitor management operations for the API.
type Service struct {
	repo Repository
}

// NewService creates a new monitor service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List retrieves all monitors of a tenant.
func (s *Service) List(ctx context.Context, tenantID string) (*models.MonitorList, error) {
	monitors, err := s.repo.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	items := make([]models.Monitor, 0, len(monitors))
	for _, m := range monitors {
		items = append(items, toAPIMonitor(m))
	}
	return &models.MonitorList{Items: items}, nil
}

// Get retrieves a monitor owned by the tenant.
func (s *Service) Get(ctx context.Context, tenantID, id string) (*models.Monitor, error) {
	m, err := s.owned(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	result := toAPIMonitor(m)
	return &result, nil
}

// Owned loads the domain monitor if it belongs to the tenant.
func (s *Service) Owned(ctx context.Context, tenantID, id string) (*Monitor, error) {
	return s.owned(ctx, tenantID, id)
}

// owned hides monitors of other tenants behind ErrMonitorNotFound.
func (s *Service) owned(ctx context.Context, tenantID, id string) (*Monitor, error) {
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.TenantID != tenantID {
		return nil, ErrMonitorNotFound
	}
	return m, nil
}

// Create creates a new monitor for a tenant.
func (s *Service) Create(ctx context.Context, tenantID string, input *models.MonitorCreateRequest) (*models.Monitor, error) {
	if fieldErrors := validateCreateInput(input); len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	now := time.Now().UTC()
	m := &Monitor{
		ID:            "mon_" + uuid.New().String()[:22],
		TenantID:      tenantID,
		Name:          input.Name,
		Type:          Type(input.Type),
		Config:        fromAPIConfig(input.Config),
		Interval:      orDefault(input.Interval, DefaultInterval),
		Timeout:       orDefault(input.Timeout, DefaultTimeoutSec),
		AlertAfter:    orDefault(input.AlertAfter, DefaultAlertAfter),
		RecoveryAfter: orDefault(input.RecoveryAfter, DefaultRecoveryAfter),
		Enabled:       true,
		ComponentID:   input.ComponentID,
		CurrentStatus: StatusUp,
		UptimeDay:     100,
		UptimeWeek:    100,
		UptimeMonth:   100,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if m.Type == TypeHeartbeat {
		m.HeartbeatToken = NewHeartbeatToken()
	}
	normalizeConfig(m)

	if err := s.repo.Create(ctx, m); err != nil {
		return nil, err
	}

	result := toAPIMonitor(m)
	return &result, nil
}

// Update updates the configuration of a monitor owned by the tenant.
func (s *Service) Update(ctx context.Context, tenantID, id string, input *models.MonitorUpdateRequest) (*models.Monitor, error) {
	m, err := s.owned(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if fieldErrors := validateUpdateInput(m.Type, input); len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	if input.Name != nil {
		m.Name = *input.Name
	}
	if input.Config != nil {
		m.Config = fromAPIConfig(*input.Config)
	}
	if input.Interval != nil {
		m.Interval = *input.Interval
	}
	if input.Timeout != nil {
		m.Timeout = *input.Timeout
	}
	if input.AlertAfter != nil {
		m.AlertAfter = *input.AlertAfter
	}
	if input.RecoveryAfter != nil {
		m.RecoveryAfter = *input.RecoveryAfter
	}
	if input.ComponentID != nil {
		if *input.ComponentID == "" {
			m.ComponentID = nil
		} else {
			m.ComponentID = input.ComponentID
		}
	}
	normalizeConfig(m)
	m.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, m); err != nil {
		return nil, err
	}

	result := toAPIMonitor(m)
	return &result, nil
}

// Pause disables checking of a monitor.
func (s *Service) Pause(ctx context.Context, tenantID, id string) (*models.Monitor, error) {
	return s.setEnabled(ctx, tenantID, id, false)
}

// Resume re-enables checking of a monitor.
func (s *Service) Resume(ctx context.Context, tenantID, id string) (*models.Monitor, error) {
	return s.setEnabled(ctx, tenantID, id, true)
}

func (s *Service) setEnabled(ctx context.Context, tenantID, id string, enabled bool) (*models.Monitor, error) {
	m, err := s.owned(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetEnabled(ctx, id, enabled); err != nil {
		return nil, err
	}
	m.Enabled = enabled

	result := toAPIMonitor(m)
	return &result, nil
}

// History returns a page of check history, most recent first.
func (s *Service) History(ctx context.Context, tenantID, id string, limit int, cursor string) (*models.PagedChecks, error) {
	if _, err := s.owned(ctx, tenantID, id); err != nil {
		return nil, err
	}

	limit = clamp(limit, DefaultPageLimit, MaxPageLimit)
	page, err := s.repo.ListChecks(ctx, id, ListOptions{Limit: limit, Cursor: cursor})
	if err != nil {
		return nil, err
	}

	items := make([]models.CheckResult, 0, len(page.Items))
	for _, c := range page.Items {
		items = append(items, toAPICheck(c))
	}

	var nextCursor *string
	if page.NextCursor != "" {
		nextCursor = &page.NextCursor
	}

	return &models.PagedChecks{
		Items: items,
		Meta: models.PagedResponseMeta{
			Limit:      limit,
			NextCursor: nextCursor,
		},
	}, nil
}

// Stats computes uptime figures and daily bars for a monitor.
func (s *Service) Stats(ctx context.Context, tenantID, id string, days int) (*models.MonitorStats, error) {
	m, err := s.owned(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	days = clamp(days, DefaultBarDays, MaxBarDays)
	now := time.Now().UTC()

	from := now.Add(-uptime.Month)
	if barsFrom := now.AddDate(0, 0, -days); barsFrom.Before(from) {
		from = barsFrom
	}

	checks, err := s.repo.ChecksBetween(ctx, id, from, now)
	if err != nil {
		return nil, fmt.Errorf("load checks: %w", err)
	}

	cache := uptime.Cache(withinMonth(checks, now), now)
	bars := uptime.Bars(checks, days, now)

	apiBars := make([]models.UptimeBar, 0, len(bars))
	for _, b := range bars {
		apiBars = append(apiBars, models.UptimeBar(b))
	}

	return &models.MonitorStats{
		MonitorID:       m.ID,
		CurrentStatus:   string(m.CurrentStatus),
		UptimeDay:       cache.Day,
		UptimeWeek:      cache.Week,
		UptimeMonth:     cache.Month,
		AvgResponseTime: cache.AvgResponseTime,
		Bars:            apiBars,
	}, nil
}

// ResponseTimes returns hourly response time buckets over the last hours.
func (s *Service) ResponseTimes(ctx context.Context, tenantID, id string, hours int) (*models.ResponseTimeSeries, error) {
	if _, err := s.owned(ctx, tenantID, id); err != nil {
		return nil, err
	}

	hours = clamp(hours, DefaultSeriesHrs, MaxSeriesHrs)
	now := time.Now().UTC()
	window := time.Duration(hours) * time.Hour

	checks, err := s.repo.ChecksBetween(ctx, id, now.Add(-window-time.Hour), now)
	if err != nil {
		return nil, fmt.Errorf("load checks: %w", err)
	}

	points := uptime.ResponseTimeSeries(checks, window, time.Hour, now)
	apiPoints := make([]models.ResponseTimePoint, 0, len(points))
	for _, p := range points {
		apiPoints = append(apiPoints, models.ResponseTimePoint{
			Time:  models.Timestamp(p.Time),
			Avg:   p.Avg,
			Min:   p.Min,
			Max:   p.Max,
			Count: p.Count,
		})
	}

	return &models.ResponseTimeSeries{
		MonitorID: id,
		Bucket:    "1h",
		Points:    apiPoints,
	}, nil
}

// RecordHeartbeat records a liveness signal for the monitor owning token.
func (s *Service) RecordHeartbeat(ctx context.Context, token string) (time.Time, error) {
	m, err := s.repo.GetByHeartbeatToken(ctx, token)
	if err != nil {
		return time.Time{}, err
	}
	if m.Type != TypeHeartbeat {
		return time.Time{}, ErrNotHeartbeat
	}

	now := time.Now().UTC()
	if err := s.repo.RecordHeartbeat(ctx, m.ID, now); err != nil {
		return time.Time{}, err
	}
	return now, nil
}

// NewHeartbeatToken returns a fresh unguessable heartbeat secret.
func NewHeartbeatToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func withinMonth(checks []*CheckResult, now time.Time) []*CheckResult {
	cutoff := now.Add(-uptime.Month)
	out := make([]*CheckResult, 0, len(checks))
	for _, c := range checks {
		if !c.CheckedAt.Before(cutoff) {
			out = append(out, c)
		}
	}
	return out
}

func normalizeConfig(m *Monitor) {
	switch m.Type {
	case TypeHTTP:
		if m.Config.Method == "" {
			m.Config.Method = "GET"
		}
		m.Config.Method = strings.ToUpper(m.Config.Method)
		if m.Config.Keyword != "" && m.Config.KeywordType == "" {
			m.Config.KeywordType = KeywordContains
		}
	case TypePing:
		if m.Config.PingCount == 0 {
			m.Config.PingCount = 3
		}
	case TypeSSL:
		if m.Config.ExpiryThresholdDays == 0 {
			m.Config.ExpiryThresholdDays = 30
		}
	}
}

// validateCreateInput validates the create monitor input.
func validateCreateInput(input *models.MonitorCreateRequest) []models.FieldError {
	var errs []models.FieldError

	if input.Name == "" {
		errs = append(errs, models.FieldError{Field: "name", Message: "is required"})
	} else if len(input.Name) > MaxNameLength {
		errs = append(errs, models.FieldError{Field: "name", Message: "must be at most 100 characters"})
	}

	t := Type(input.Type)
	if !t.Valid() {
		errs = append(errs, models.FieldError{Field: "type", Message: "must be one of HTTP, TCP, PING, SSL, DNS, HEARTBEAT"})
	} else {
		errs = append(errs, validateConfig(t, input.Config)...)
	}

	errs = append(errs, validateSchedule(input.Interval, input.Timeout, input.AlertAfter, input.RecoveryAfter)...)
	return errs
}

// validateUpdateInput validates the update monitor input.
func validateUpdateInput(t Type, input *models.MonitorUpdateRequest) []models.FieldError {
	var errs []models.FieldError

	if input.Name != nil {
		if *input.Name == "" {
			errs = append(errs, models.FieldError{Field: "name", Message: "cannot be empty"})
		} else if len(*input.Name) > MaxNameLength {
			errs = append(errs, models.FieldError{Field: "name", Message: "must be at most 100 characters"})
		}
	}
	if input.Config != nil {
		errs = append(errs, validateConfig(t, *input.Config)...)
	}

	errs = append(errs, validateSchedule(deref(input.Interval), deref(input.Timeout), deref(input.AlertAfter), deref(input.RecoveryAfter))...)
	return errs
}

// validateSchedule checks optional scheduling fields; zero means unset.
func validateSchedule(interval, timeout, alertAfter, recoveryAfter int) []models.FieldError {
	var errs []models.FieldError

	if interval != 0 && (interval < MinInterval || interval > MaxInterval) {
		errs = append(errs, models.FieldError{Field: "interval", Message: fmt.Sprintf("must be between %d and %d seconds", MinInterval, MaxInterval)})
	}
	if timeout != 0 && (timeout < 1 || timeout > MaxTimeout) {
		errs = append(errs, models.FieldError{Field: "timeout", Message: fmt.Sprintf("must be between 1 and %d seconds", MaxTimeout)})
	}
	if alertAfter != 0 && (alertAfter < 1 || alertAfter > MaxThreshold) {
		errs = append(errs, models.FieldError{Field: "alertAfter", Message: "must be between 1 and 10"})
	}
	if recoveryAfter != 0 && (recoveryAfter < 1 || recoveryAfter > MaxThreshold) {
		errs = append(errs, models.FieldError{Field: "recoveryAfter", Message: "must be between 1 and 10"})
	}
	return errs
}

// validateConfig validates the type specific configuration.
func validateConfig(t Type, c models.MonitorConfig) []models.FieldError {
	var errs []models.FieldError

	switch t {
	case TypeHTTP:
		u, err := url.Parse(c.URL)
		if c.URL == "" {
			errs = append(errs, models.FieldError{Field: "config.url", Message: "is required"})
		} else if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, models.FieldError{Field: "config.url", Message: "must be an absolute http or https URL"})
		}
		if c.Method != "" && !httpMethods[strings.ToUpper(c.Method)] {
			errs = append(errs, models.FieldError{Field: "config.method", Message: "is not a supported HTTP method"})
		}
		if c.ExpectedStatus != 0 && (c.ExpectedStatus < 100 || c.ExpectedStatus > 599) {
			errs = append(errs, models.FieldError{Field: "config.expectedStatus", Message: "must be a valid HTTP status code"})
		}
		if c.KeywordType != "" && KeywordType(c.KeywordType) != KeywordContains && KeywordType(c.KeywordType) != KeywordNotContains {
			errs = append(errs, models.FieldError{Field: "config.keywordType", Message: "must be CONTAINS or NOT_CONTAINS"})
		}
	case TypeTCP:
		if c.Host == "" {
			errs = append(errs, models.FieldError{Field: "config.host", Message: "is required"})
		}
		if c.Port < 1 || c.Port > 65535 {
			errs = append(errs, models.FieldError{Field: "config.port", Message: "must be between 1 and 65535"})
		}
	case TypePing:
		if c.Host == "" {
			errs = append(errs, models.FieldError{Field: "config.host", Message: "is required"})
		}
		if c.PingCount < 0 || c.PingCount > MaxPingCount {
			errs = append(errs, models.FieldError{Field: "config.pingCount", Message: "must be between 1 and 10"})
		}
		errs = append(errs, validateOptionalPort(c.Port)...)
	case TypeSSL:
		if c.Host == "" && c.URL == "" {
			errs = append(errs, models.FieldError{Field: "config.host", Message: "is required"})
		}
		if c.ExpiryThresholdDays < 0 {
			errs = append(errs, models.FieldError{Field: "config.expiryThresholdDays", Message: "cannot be negative"})
		}
		errs = append(errs, validateOptionalPort(c.Port)...)
	case TypeDNS:
		if c.Host == "" {
			errs = append(errs, models.FieldError{Field: "config.host", Message: "is required"})
		}
	case TypeHeartbeat:
		if c.GracePeriod < 0 {
			errs = append(errs, models.FieldError{Field: "config.gracePeriod", Message: "cannot be negative"})
		}
	}
	return errs
}

func validateOptionalPort(port int) []models.FieldError {
	if port != 0 && (port < 1 || port > 65535) {
		return []models.FieldError{{Field: "config.port", Message: "must be between 1 and 65535"}}
	}
	return nil
}

func fromAPIConfig(c models.MonitorConfig) Config {
	return Config{
		URL:                 c.URL,
		Method:              c.Method,
		Headers:             c.Headers,
		Body:                c.Body,
		ExpectedStatus:      c.ExpectedStatus,
		Keyword:             c.Keyword,
		KeywordType:         KeywordType(c.KeywordType),
		Host:                c.Host,
		Port:                c.Port,
		PingCount:           c.PingCount,
		ExpiryThresholdDays: c.ExpiryThresholdDays,
		ExpectedIP:          c.ExpectedIP,
		ExpectedCNAME:       c.ExpectedCNAME,
		GracePeriod:         c.GracePeriod,
	}
}

func toAPIConfig(c Config) models.MonitorConfig {
	return models.MonitorConfig{
		URL:                 c.URL,
		Method:              c.Method,
		Headers:             c.Headers,
		Body:                c.Body,
		ExpectedStatus:      c.ExpectedStatus,
		Keyword:             c.Keyword,
		KeywordType:         string(c.KeywordType),
		Host:                c.Host,
		Port:                c.Port,
		PingCount:           c.PingCount,
		ExpiryThresholdDays: c.ExpiryThresholdDays,
		ExpectedIP:          c.ExpectedIP,
		ExpectedCNAME:       c.ExpectedCNAME,
		GracePeriod:         c.GracePeriod,
	}
}

// toAPIMonitor converts a domain Monitor to an API Monitor.
func toAPIMonitor(m *Monitor) models.Monitor {
	out := models.Monitor{
		ID:              m.ID,
		Name:            m.Name,
		Type:            string(m.Type),
		Config:          toAPIConfig(m.Config),
		Interval:        m.Interval,
		Timeout:         m.Timeout,
		AlertAfter:      m.AlertAfter,
		RecoveryAfter:   m.RecoveryAfter,
		Enabled:         m.Enabled,
		ComponentID:     m.ComponentID,
		CurrentStatus:   string(m.CurrentStatus),
		UptimeDay:       m.UptimeDay,
		UptimeWeek:      m.UptimeWeek,
		UptimeMonth:     m.UptimeMonth,
		AvgResponseTime: m.AvgResponseTime,
		CreatedAt:       models.Timestamp(m.CreatedAt),
		UpdatedAt:       models.Timestamp(m.UpdatedAt),
	}
	if m.Type == TypeHeartbeat && m.HeartbeatToken != "" {
		token := m.HeartbeatToken
		out.HeartbeatToken = &token
	}
	if m.LastCheckedAt != nil {
		ts := models.Timestamp(*m.LastCheckedAt)
		out.LastCheckedAt = &ts
	}
	if m.LastHeartbeatAt != nil {
		ts := models.Timestamp(*m.LastHeartbeatAt)
		out.LastHeartbeatAt = &ts
	}
	return out
}

func toAPICheck(c *CheckResult) models.CheckResult {
	return models.CheckResult{
		ID:           c.ID,
		Status:       string(c.Status),
		ResponseTime: c.ResponseTime,
		StatusCode:   c.StatusCode,
		Error:        c.Error,
		Region:       c.Region,
		CheckedAt:    models.Timestamp(c.CheckedAt),
	}
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func clamp(v, def, max int) int {
	if v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// ValidationError represents validation errors.
type ValidationError struct {
	Errors []models.FieldError
}

func (e *ValidationError) Error() string {
	return "validation failed"
}

// IsValidationError reports whether err is a *ValidationError.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
