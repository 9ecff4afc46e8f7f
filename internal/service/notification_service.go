package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/noah-isme/service-order-api/internal/models"
	"github.com/noah-isme/service-order-api/pkg/jobs"
)

const notificationJobType = "notification"

// Notification is a fire-and-forget notice for a single user.
type Notification struct {
	UserID  string                 `json:"userId"`
	Subject string                 `json:"subject"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Sink delivers a notification to a resolved contact.
type Sink interface {
	Deliver(ctx context.Context, contact *models.UserContact, n Notification) error
}

type contactDirectory interface {
	FindContact(ctx context.Context, id string) (*models.UserContact, error)
}

// NotificationService dispatches notifications on a background queue so
// callers never wait for delivery.
type NotificationService struct {
	directory contactDirectory
	sink      Sink
	metrics   *MetricsService
	logger    *zap.Logger
	queue     *jobs.Queue
}

// NewNotificationService wires the dispatcher. Call Start before Notify.
func NewNotificationService(directory contactDirectory, sink Sink, metrics *MetricsService, logger *zap.Logger, cfg jobs.QueueConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = NewLogSink(logger)
	}
	svc := &NotificationService{directory: directory, sink: sink, metrics: metrics, logger: logger}
	cfg.Logger = logger
	cfg.OnDrop = func(job jobs.Job, err error) {
		metrics.ObserveNotification("dropped")
	}
	svc.queue = jobs.NewQueue("notifications", svc.handle, cfg)
	return svc
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop waits for workers to exit; undelivered notifications are discarded.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Notify enqueues n without waiting for delivery.
func (s *NotificationService) Notify(_ context.Context, n Notification) error {
	if strings.TrimSpace(n.UserID) == "" {
		return fmt.Errorf("notification without recipient")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: notificationJobType, Payload: n}); err != nil {
		s.metrics.ObserveNotification("rejected")
		return err
	}
	s.metrics.ObserveNotification("queued")
	return nil
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(Notification)
	if !ok {
		s.logger.Error("unexpected notification payload", zap.String("job_id", job.ID))
		return nil
	}

	contact := &models.UserContact{ID: n.UserID, Active: true}
	if s.directory != nil {
		found, err := s.directory.FindContact(ctx, n.UserID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			s.logger.Warn("notification recipient not found", zap.String("user_id", n.UserID), zap.String("subject", n.Subject))
			s.metrics.ObserveNotification("unknown_recipient")
			return nil
		case err != nil:
			return fmt.Errorf("resolve recipient %s: %w", n.UserID, err)
		}
		contact = found
	}
	if !contact.Active {
		s.logger.Info("notification recipient inactive", zap.String("user_id", n.UserID), zap.String("subject", n.Subject))
		s.metrics.ObserveNotification("inactive_recipient")
		return nil
	}

	if err := s.sink.Deliver(ctx, contact, n); err != nil {
		return err
	}
	s.metrics.ObserveNotification("delivered")
	return nil
}

// LogSink writes notifications to the structured log.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink constructs a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Deliver implements Sink.
func (s *LogSink) Deliver(_ context.Context, contact *models.UserContact, n Notification) error {
	s.logger.Info("notification",
		zap.String("user_id", contact.ID),
		zap.String("email", contact.Email),
		zap.String("subject", n.Subject),
		zap.Any("payload", n.Payload),
	)
	return nil
}

// SMTPSink e-mails notifications via gomail.
type SMTPSink struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPSink constructs the sink.
func NewSMTPSink(host string, port int, username, password, from string) *SMTPSink {
	return &SMTPSink{dialer: gomail.NewDialer(host, port, username, password), from: from}
}

// Deliver implements Sink.
func (s *SMTPSink) Deliver(_ context.Context, contact *models.UserContact, n Notification) error {
	if contact.Email == "" {
		return nil
	}
	m := s.message(contact, n)
	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send notification to %s: %w", contact.ID, err)
	}
	return nil
}

func (s *SMTPSink) message(contact *models.UserContact, n Notification) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetAddressHeader("To", contact.Email, contact.FullName)
	m.SetHeader("Subject", n.Subject)
	m.SetBody("text/plain", plainBody(contact, n))
	return m
}

func plainBody(contact *models.UserContact, n Notification) string {
	var b strings.Builder
	name := contact.FullName
	if name == "" {
		name = contact.ID
	}
	fmt.Fprintf(&b, "Hello %s,\n\n%s\n", name, n.Subject)
	keys := make([]string, 0, len(n.Payload))
	for k := range n.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > 0 {
		b.WriteString("\n")
	}
	for _, k := range keys {
		raw, err := json.Marshal(n.Payload[k])
		if err != nil {
			raw = []byte(fmt.Sprintf("%v", n.Payload[k]))
		}
		fmt.Fprintf(&b, "%s: %s\n", k, strings.Trim(string(raw), `"`))
	}
	return b.String()
}
