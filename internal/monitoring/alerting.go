package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// AlertSeverity ranks how urgent an alert is
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityError    AlertSeverity = "error"
	SeverityCritical AlertSeverity = "critical"
)

// AlertStatus is the lifecycle state of an alert
type AlertStatus string

const (
	StatusActive   AlertStatus = "active"
	StatusResolved AlertStatus = "resolved"
)

// Alert is one fired rule together with the value that tripped it
type Alert struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Severity    AlertSeverity `json:"severity"`
	Status      AlertStatus   `json:"status"`
	Value       float64       `json:"value"`
	Threshold   float64       `json:"threshold"`
	FiredAt     time.Time     `json:"fired_at"`
	ResolvedAt  *time.Time    `json:"resolved_at,omitempty"`
}

// AlertRule defines a rule for generating alerts. Query names one of the
// metric queries the manager knows how to evaluate; For is how long the
// condition must hold before the alert fires.
type AlertRule struct {
	Name        string
	Query       string
	Threshold   float64
	Operator    string // "gt", "lt", "gte", "lte"
	Severity    AlertSeverity
	Description string
	For         time.Duration
}

// AlertNotifier delivers alert state changes to an external sink
type AlertNotifier interface {
	SendAlert(ctx context.Context, alert *Alert) error
	ResolveAlert(ctx context.Context, alert *Alert) error
}

// WebhookNotifier posts alerts to a webhook endpoint. The payload carries a
// Slack-compatible text field alongside the structured alert.
type WebhookNotifier struct {
	WebhookURL string
	client     *http.Client
}

// NewWebhookNotifier creates a new webhook notifier
func NewWebhookNotifier(webhookURL string) *WebhookNotifier {
	return &WebhookNotifier{
		WebhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// SendAlert posts a firing alert to the webhook
func (n *WebhookNotifier) SendAlert(ctx context.Context, alert *Alert) error {
	text := fmt.Sprintf("[%s] %s: %s (value %.2f, threshold %.2f)",
		alert.Severity, alert.Name, alert.Description, alert.Value, alert.Threshold)
	return n.post(ctx, text, alert)
}

// ResolveAlert posts a resolution notification to the webhook
func (n *WebhookNotifier) ResolveAlert(ctx context.Context, alert *Alert) error {
	text := fmt.Sprintf("[resolved] %s", alert.Name)
	return n.post(ctx, text, alert)
}

func (n *WebhookNotifier) post(ctx context.Context, text string, alert *Alert) error {
	payload, err := json.Marshal(map[string]interface{}{
		"text":  text,
		"alert": alert,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// AlertManager evaluates alert rules against live metrics and fans firing
// and resolution notifications out to the registered notifiers.
type AlertManager struct {
	mu            sync.RWMutex
	rules         []AlertRule
	alerts        map[string]*Alert
	pendingSince  map[string]time.Time
	notifiers     []AlertNotifier
	logger        *Logger
	metrics       *Metrics
	memory        *MemoryMonitor
	checkInterval time.Duration
}

// NewAlertManager builds a manager that polls rules every checkInterval
func NewAlertManager(logger *Logger, metrics *Metrics, memory *MemoryMonitor, checkInterval time.Duration) *AlertManager {
	return &AlertManager{
		alerts:        make(map[string]*Alert),
		pendingSince:  make(map[string]time.Time),
		logger:        logger,
		metrics:       metrics,
		memory:        memory,
		checkInterval: checkInterval,
	}
}

// AddRule registers a rule for evaluation
func (am *AlertManager) AddRule(rule AlertRule) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.rules = append(am.rules, rule)
}

// AddNotifier registers a notification sink
func (am *AlertManager) AddNotifier(notifier AlertNotifier) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.notifiers = append(am.notifiers, notifier)
}

// Start runs the evaluation loop until ctx is cancelled
func (am *AlertManager) Start(ctx context.Context) {
	ticker := time.NewTicker(am.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			am.EvaluateRules(ctx)
		}
	}
}

// EvaluateRules evaluates all alert rules against current metric values
func (am *AlertManager) EvaluateRules(ctx context.Context) {
	am.mu.RLock()
	rules := make([]AlertRule, len(am.rules))
	copy(rules, am.rules)
	am.mu.RUnlock()

	for _, rule := range rules {
		am.evaluateRule(ctx, rule)
	}
}

func (am *AlertManager) evaluateRule(ctx context.Context, rule AlertRule) {
	value, ok := am.currentValue(rule.Query)
	if !ok {
		am.logger.SystemLogger("unknown_alert_query", fmt.Sprintf("Unknown query type: %s", rule.Query))
		return
	}

	conditionMet := compare(value, rule.Operator, rule.Threshold)

	am.mu.Lock()
	alert, active := am.alerts[rule.Name]

	if !conditionMet {
		delete(am.pendingSince, rule.Name)
		if active && alert.Status == StatusActive {
			now := time.Now()
			alert.Status = StatusResolved
			alert.ResolvedAt = &now
			am.mu.Unlock()
			am.notify(ctx, alert, true)
			return
		}
		am.mu.Unlock()
		return
	}

	if active && alert.Status == StatusActive {
		alert.Value = value
		am.mu.Unlock()
		return
	}

	first, pending := am.pendingSince[rule.Name]
	if !pending {
		am.pendingSince[rule.Name] = time.Now()
		am.mu.Unlock()
		return
	}
	if time.Since(first) < rule.For {
		am.mu.Unlock()
		return
	}

	alert = &Alert{
		ID:          rule.Name,
		Name:        rule.Name,
		Description: rule.Description,
		Severity:    rule.Severity,
		Status:      StatusActive,
		Value:       value,
		Threshold:   rule.Threshold,
		FiredAt:     time.Now(),
	}
	am.alerts[rule.Name] = alert
	delete(am.pendingSince, rule.Name)
	am.mu.Unlock()

	am.notify(ctx, alert, false)
}

// currentValue resolves a rule query against the live metric sources.
func (am *AlertManager) currentValue(query string) (float64, bool) {
	switch query {
	case "error_rate":
		return am.metrics.ErrorRate(), true
	case "response_time_p95":
		return float64(am.metrics.GetPercentileResponseTime(95).Milliseconds()), true
	case "degraded_rate":
		return am.metrics.DegradedRate(), true
	case "heap_utilization":
		if am.memory == nil {
			return 0, true
		}
		return am.memory.HeapUtilization() * 100, true
	default:
		return 0, false
	}
}

func compare(value float64, operator string, threshold float64) bool {
	switch operator {
	case "gt":
		return value > threshold
	case "lt":
		return value < threshold
	case "gte":
		return value >= threshold
	case "lte":
		return value <= threshold
	default:
		return false
	}
}

// notify fans the state change out to every notifier. Notifier calls run
// off the evaluation loop so a slow webhook cannot stall rule checks.
func (am *AlertManager) notify(ctx context.Context, alert *Alert, resolved bool) {
	if resolved {
		am.logger.SystemLogger("alert_resolved", fmt.Sprintf("Alert %s resolved", alert.Name))
	} else {
		am.logger.SystemLogger("alert_fired", fmt.Sprintf("Alert %s fired with severity %s", alert.Name, alert.Severity))
	}

	am.mu.RLock()
	notifiers := make([]AlertNotifier, len(am.notifiers))
	copy(notifiers, am.notifiers)
	am.mu.RUnlock()

	for _, notifier := range notifiers {
		go func(n AlertNotifier) {
			var err error
			if resolved {
				err = n.ResolveAlert(ctx, alert)
			} else {
				err = n.SendAlert(ctx, alert)
			}
			if err != nil {
				am.logger.SystemLogger("alert_notification_failed", fmt.Sprintf("Failed to notify for alert %s: %v", alert.Name, err))
			}
		}(notifier)
	}
}

// GetActiveAlerts returns the alerts currently firing
func (am *AlertManager) GetActiveAlerts() map[string]*Alert {
	am.mu.RLock()
	defer am.mu.RUnlock()

	activeAlerts := make(map[string]*Alert)
	for k, v := range am.alerts {
		if v.Status == StatusActive {
			activeAlerts[k] = v
		}
	}
	return activeAlerts
}

// DefaultAlertRules covers the failure modes that matter for this service:
// request errors, latency, schema drift and training memory pressure.
var DefaultAlertRules = []AlertRule{
	{
		Name:        "HighErrorRate",
		Query:       "error_rate",
		Threshold:   10.0,
		Operator:    "gt",
		Severity:    SeverityWarning,
		Description: "Error rate is above 10%",
		For:         5 * time.Minute,
	},
	{
		Name:        "SlowResponseTime",
		Query:       "response_time_p95",
		Threshold:   1000.0,
		Operator:    "gt",
		Severity:    SeverityWarning,
		Description: "p95 response time is above 1000ms",
		For:         2 * time.Minute,
	},
	{
		Name:        "DegradedAnalyses",
		Query:       "degraded_rate",
		Threshold:   20.0,
		Operator:    "gt",
		Severity:    SeverityError,
		Description: "More than 20% of analyses fall back to degraded scoring; the model schema no longer matches live traffic",
		For:         5 * time.Minute,
	},
	{
		Name:        "HighMemoryUsage",
		Query:       "heap_utilization",
		Threshold:   90.0,
		Operator:    "gt",
		Severity:    SeverityCritical,
		Description: "Heap utilization is above 90%",
		For:         1 * time.Minute,
	},
}
