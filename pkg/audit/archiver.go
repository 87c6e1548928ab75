package audit

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ArchiverConfig configures retention archiving.
type ArchiverConfig struct {
	RetentionDays int
	BatchSize     int

	// Schedule is a cron expression; defaults to daily at 03:00.
	Schedule string

	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
}

// Archiver exports audit events past retention to S3 as NDJSON and prunes
// them from the database. Failures are logged and retried on the next run,
// never surfaced to request handling.
type Archiver struct {
	db     *sql.DB
	client *s3.Client
	config ArchiverConfig
	log    *logrus.Logger
	cron   *cron.Cron
}

// NewArchiver creates an archiver with an S3 client built from config
func NewArchiver(ctx context.Context, db *sql.DB, cfg ArchiverConfig, log *logrus.Logger) (*Archiver, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 90
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10000
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "0 3 * * *"
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Archiver{
		db:     db,
		client: client,
		config: cfg,
		log:    log,
	}, nil
}

// Start schedules periodic archive runs
func (a *Archiver) Start() error {
	a.cron = cron.New()
	_, err := a.cron.AddFunc(a.config.Schedule, func() {
		if err := a.Run(context.Background()); err != nil {
			a.log.WithError(err).Warn("audit archive run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule archiver: %w", err)
	}
	a.cron.Start()
	return nil
}

// Stop halts scheduled runs
func (a *Archiver) Stop() {
	if a.cron != nil {
		a.cron.Stop()
	}
}

// Run archives one batch of events older than the retention window
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -a.config.RetentionDays)

	events, maxID, err := a.fetchBatch(ctx, cutoff)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, event := range events {
		if err := enc.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event %d: %w", event.ID, err)
		}
	}

	key := fmt.Sprintf("audit/%s/events-%d.ndjson", cutoff.Format("2006-01-02"), maxID)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.config.S3Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload archive %s: %w", key, err)
	}

	// Prune only after the upload succeeded
	if _, err := a.db.ExecContext(ctx,
		`DELETE FROM audit_events WHERE timestamp < $1 AND id <= $2`, cutoff, maxID); err != nil {
		return fmt.Errorf("failed to prune archived events: %w", err)
	}

	a.log.WithFields(logrus.Fields{
		"count": len(events),
		"key":   key,
	}).Info("archived audit events")

	return nil
}

func (a *Archiver) fetchBatch(ctx context.Context, cutoff time.Time) ([]*Event, int64, error) {
	query := `
		SELECT id, timestamp, event_type, status,
		       COALESCE(user_id, ''), COALESCE(email, ''), COALESCE(organization_id, ''),
		       COALESCE(ip_address, ''), COALESCE(user_agent, ''), COALESCE(request_id, ''),
		       COALESCE(method, ''), COALESCE(path, ''), COALESCE(message, '')
		FROM audit_events
		WHERE timestamp < $1
		ORDER BY id ASC
		LIMIT $2
	`
	rows, err := a.db.QueryContext(ctx, query, cutoff, a.config.BatchSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query expired events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	var maxID int64
	for rows.Next() {
		event := &Event{}
		if err := rows.Scan(
			&event.ID, &event.Timestamp, &event.Type, &event.Status,
			&event.UserID, &event.Email, &event.OrgID,
			&event.IPAddress, &event.UserAgent, &event.RequestID,
			&event.Method, &event.Path, &event.Message,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan event: %w", err)
		}
		if event.ID > maxID {
			maxID = event.ID
		}
		events = append(events, event)
	}

	return events, maxID, rows.Err()
}
