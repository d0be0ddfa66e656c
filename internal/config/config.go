package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"movefines/internal/adapters/digitalpost"
	"movefines/internal/adapters/eflyt"
	"movefines/internal/adapters/graph"
	"movefines/internal/adapters/nova"
	"movefines/internal/adapters/sap"
	"movefines/internal/adapters/smtp"
	"movefines/internal/config/connections/mongo"
	"movefines/internal/config/connections/postgres"
	"movefines/internal/config/connections/s3"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	S3       *s3.S3
	Mongo    *mongo.Mongo
	Postgres *postgres.Postgres
	Robot    Robot
}

// Robot holds everything a robot pass needs besides the connections.
type Robot struct {
	QueueName       string
	QueueTable      string
	MaxIterations   int
	TimeBudget      time.Duration
	InvoiceCooldown time.Duration
	MaxRetries      int

	// AZ idents allowed to request fines by mail.
	ApprovedUsers []string
	ErrorEmail    string
	Contact       string

	// TemplateLocation is an s3://, http(s):// or local path, or a key in
	// the default bucket.
	TemplateLocation string
	TemplateRoot     string
	ArchivePrefix    string

	SMTP        smtp.Config
	Graph       graph.Config
	Eflyt       eflyt.Config
	Nova        nova.Config
	DigitalPost digitalpost.Config
	SAP         sap.Config
}

func Init(ctx context.Context) *Config {
	_ = godotenv.Load()
	port := getenv("SERVER_PORT", "8070")

	robot, err := LoadRobot()
	if err != nil {
		log.Fatal("robot config error:", err)
	}

	s3c, err := s3.NewConnection(s3.ConnectionInfo{
		Endpoint:  getenv("AWS_ENDPOINT", "localhost:9000"),
		AccessKey: getenv("AWS_ACCESS_KEY_ID", "minioadmin"),
		SecretKey: getenv("AWS_SECRET_ACCESS_KEY", "minioadmin"),
		Region:    getenv("AWS_DEFAULT_REGION", "us-east-1"),
		Bucket:    getenv("AWS_BUCKET", "movefines"),
		UseSSL:    getenv("AWS_USE_SSL", "false") == "true",
	})
	if err != nil {
		log.Fatal("S3 connect error:", err)
	}

	mg, err := mongo.NewConnection(ctx, mongo.ConnectionInfo{
		Scheme:     getenv("MONGO_SCHEME", "mongodb"),
		User:       getenv("MONGO_USER", "root"),
		Password:   getenv("MONGO_PASSWORD", "secret"),
		Host:       getenv("MONGO_HOST", "127.0.0.1"),
		Port:       getenv("MONGO_PORT", "27017"),
		DB:         getenv("MONGO_DB", "movefines"),
		AuthSource: getenv("MONGO_AUTH_SOURCE", "admin"),
		AppName:    "movefines",
	})
	if err != nil {
		log.Fatal("Mongo connect error:", err)
	}

	pg, err := postgres.NewConnection(ctx, postgres.ConnectionInfo{
		Host:     getenv("PG_HOST", "127.0.0.1"),
		Port:     getenv("PG_PORT", "5432"),
		User:     getenv("PG_USER", "root"),
		Password: getenv("PG_PASSWORD", "hello-world"),
		DB:       getenv("PG_DB", "movefines"),
		SSLMode:  getenv("PG_SSLMODE", "disable"),
		AppName:  "movefines",
		MaxConns: 4,
	})
	if err != nil {
		log.Fatal("Postgres connect error:", err)
	}

	return &Config{
		S3:       s3c,
		Mongo:    mg,
		Postgres: pg,
		Port:     port,
		Robot:    robot,
	}
}

// LoadRobot reads the robot settings from the environment. It opens
// nothing and can be called from tests.
func LoadRobot() (Robot, error) {
	p := &parser{}

	r := Robot{
		QueueName:        getenv("ROBOT_QUEUE_NAME", "Folkeregisterbøder"),
		QueueTable:       getenv("ROBOT_QUEUE_TABLE", "queue_elements"),
		MaxIterations:    p.integer("ROBOT_MAX_ITERATIONS", 1000),
		TimeBudget:       p.duration("ROBOT_TIME_BUDGET", 60*time.Minute),
		InvoiceCooldown:  p.duration("ROBOT_INVOICE_COOLDOWN", 10*time.Minute),
		MaxRetries:       p.integer("MAX_RETRY_COUNT", 3),
		ApprovedUsers:    list(getenv("ROBOT_APPROVED_USERS", "")),
		ErrorEmail:       getenv("ERROR_EMAIL", ""),
		Contact:          getenv("ROBOT_CONTACT", ""),
		TemplateLocation: getenv("ROBOT_TEMPLATE", "templates/folkeregisterboede.docx"),
		TemplateRoot:     getenv("ROBOT_TEMPLATE_ROOT", ""),
		ArchivePrefix:    getenv("ROBOT_ARCHIVE_PREFIX", "folkeregisterboeder"),

		SMTP: smtp.Config{
			Host: getenv("SMTP_SERVER", "smtp.aarhuskommune.local"),
			Port: p.integer("SMTP_PORT", 25),
			From: getenv("SMTP_SENDER", "itk-rpa@mkb.aarhus.dk"),
		},
		Graph: graph.Config{
			BaseURL:  getenv("GRAPH_BASE_URL", ""),
			TenantID: getenv("GRAPH_TENANT_ID", ""),
			ClientID: getenv("GRAPH_CLIENT_ID", ""),
			Username: getenv("GRAPH_USERNAME", ""),
			Password: getenv("GRAPH_PASSWORD", ""),
			Mailbox:  getenv("GRAPH_MAILBOX", "itk-rpa@mkb.aarhus.dk"),
			Folder:   getenv("GRAPH_FOLDER", "Indbakke/Folkeregisterbøder"),
			Sender:   getenv("GRAPH_SENDER", "noreply@aarhus.dk"),
			Subject:  getenv("GRAPH_SUBJECT", "Folkeregisterbøder"),
		},
		Eflyt: eflyt.Config{
			BaseURL:   getenv("EFLYT_URL", "https://notuskommunal.scandihealth.net/"),
			SearchURL: getenv("EFLYT_SEARCH_URL", "https://notuskommunal.scandihealth.net/web/SearchResulteFlyt.aspx"),
			Username:  getenv("EFLYT_USERNAME", ""),
			Password:  getenv("EFLYT_PASSWORD", ""),
			Timeout:   p.duration("EFLYT_TIMEOUT", 30*time.Second),
		},
		Nova: nova.Config{
			BaseURL:      getenv("NOVA_URL", "https://cap-awswlbs-wm3q2021.kmd.dk/KMD.YH.KMDLogicPartner.NovaESDH.Api"),
			TokenURL:     getenv("NOVA_TOKEN_URL", ""),
			ClientID:     getenv("NOVA_CLIENT_ID", ""),
			ClientSecret: getenv("NOVA_CLIENT_SECRET", ""),
			Caseworker: nova.Caseworker{
				Name:  getenv("NOVA_CASEWORKER_NAME", "svcitkopeno svcitkopeno"),
				Ident: getenv("NOVA_CASEWORKER_IDENT", "AZX0080"),
				UUID:  getenv("NOVA_CASEWORKER_UUID", "0bacdddd-5c61-4676-9a61-b01a18cec1d5"),
			},
			Department: nova.Department{
				ID:      p.integer("NOVA_DEPARTMENT_ID", 818485),
				Name:    getenv("NOVA_DEPARTMENT_NAME", "Borgerservice"),
				UserKey: getenv("NOVA_DEPARTMENT_USER_KEY", "4BBORGER"),
			},
			PollAttempts: uint64(p.integer("NOVA_POLL_ATTEMPTS", 5)),
			PollInterval: p.duration("NOVA_POLL_INTERVAL", 2*time.Second),
		},
		DigitalPost: digitalpost.Config{
			LoginURL:       getenv("DP_LOGIN_URL", ""),
			AppURL:         getenv("DP_APP_URL", ""),
			SendURL:        getenv("DP_SEND_URL", ""),
			Username:       getenv("DP_USERNAME", ""),
			Password:       getenv("DP_PASSWORD", ""),
			EncryptionKey:  p.rawJSON("DP_ENCRYPTION_KEY"),
			AgreementID:    getenv("DP_AGREEMENT_ID", ""),
			AgreementName:  getenv("DP_AGREEMENT_NAME", ""),
			DocumentTypeID: getenv("DP_DOCUMENT_TYPE_ID", ""),
			Timeout:        p.duration("DP_TIMEOUT", 30*time.Second),
		},
		SAP: sap.Config{
			BaseURL:        getenv("SAP_URL", ""),
			Username:       getenv("SAP_USERNAME", ""),
			Password:       getenv("SAP_PASSWORD", ""),
			Account:        getenv("SAP_ACCOUNT", ""),
			InvoiceProcess: getenv("SAP_INVOICE_PROCESS", ""),
			PollInterval:   p.duration("SAP_POLL_INTERVAL", 10*time.Second),
			PollTimeout:    p.duration("SAP_POLL_TIMEOUT", 2*time.Minute),
			Timeout:        p.duration("SAP_TIMEOUT", 60*time.Second),
		},
	}

	if r.MaxIterations <= 0 {
		p.errs = append(p.errs, errors.New("ROBOT_MAX_ITERATIONS must be positive"))
	}
	if r.MaxRetries <= 0 {
		p.errs = append(p.errs, errors.New("MAX_RETRY_COUNT must be positive"))
	}
	return r, errors.Join(p.errs...)
}

func (c *Config) CheckConnections(ctx context.Context) error {
	var errs []error

	if c.Postgres == nil || c.Postgres.Pool == nil {
		errs = append(errs, errors.New("postgres not initialized"))
	} else if err := c.Postgres.Pool.Ping(ctx); err != nil {
		errs = append(errs, fmt.Errorf("postgres ping failed: %w", err))
	}

	if c.Mongo == nil || c.Mongo.Client == nil {
		errs = append(errs, errors.New("mongo not initialized"))
	} else if err := c.Mongo.Client.Ping(ctx, nil); err != nil {
		errs = append(errs, fmt.Errorf("mongo ping failed: %w", err))
	}

	if c.S3 == nil || c.S3.Client == nil {
		errs = append(errs, errors.New("s3 not initialized"))
	} else if ok, err := c.S3.Client.BucketExists(ctx, c.S3.Bucket); err != nil {
		errs = append(errs, fmt.Errorf("s3 bucket check failed: %w", err))
	} else if !ok {
		errs = append(errs, fmt.Errorf("s3 bucket %q not found", c.S3.Bucket))
	}

	if len(errs) == 0 {
		return nil
	}

	return errors.Join(errs...)
}

func (c *Config) Close(ctx context.Context) {
	if err := c.Mongo.Close(ctx); err != nil {
		log.Printf("[CONFIG] mongo close: %v", err)
	}
	c.Postgres.Close()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// parser collects every malformed value instead of stopping at the first.
type parser struct{ errs []error }

func (p *parser) integer(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return n
}

// duration accepts Go durations ("90s") or plain minutes ("60").
func (p *parser) duration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Minute
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return d
}

func (p *parser) rawJSON(k string) json.RawMessage {
	v := os.Getenv(k)
	if v == "" {
		return nil
	}
	if !json.Valid([]byte(v)) {
		p.errs = append(p.errs, fmt.Errorf("%s: not valid JSON", k))
		return nil
	}
	return json.RawMessage(v)
}

func list(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
