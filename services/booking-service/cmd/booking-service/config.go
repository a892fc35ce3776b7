package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/md-rashed-zaman/zapagenda/libs/config"
	"github.com/md-rashed-zaman/zapagenda/services/booking-service/internal/model"
)

const (
	driverPostgres = "postgres"
	driverMemory   = "memory"
)

type settings struct {
	Port               string
	GRPCPort           string
	StorageDriver      string
	DatabaseURL        string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	SlotCacheTTL       time.Duration
	LeadTime           time.Duration
	DefaultTimezone    string
	UpsertAttempts     int
	UpsertBackoff      time.Duration
	KafkaBrokers       string
	KafkaGroupID       string
	OutboxPollInterval time.Duration
	CORSOrigins        []string
	RateLimitPerMinute int
}

func loadSettings() (settings, error) {
	var (
		s    settings
		err  error
		errs []error
	)
	collect := func(e error) {
		if e != nil {
			errs = append(errs, e)
		}
	}

	s.Port, err = config.Port("PORT", "8083")
	collect(err)
	s.GRPCPort, err = config.Port("GRPC_PORT", "9093")
	collect(err)

	s.StorageDriver = strings.ToLower(config.String("STORAGE_DRIVER", driverPostgres))
	switch s.StorageDriver {
	case driverPostgres:
		s.DatabaseURL, err = config.RequiredString("DATABASE_URL")
		collect(err)
	case driverMemory:
	default:
		collect(fmt.Errorf("STORAGE_DRIVER must be %q or %q (got %q)", driverPostgres, driverMemory, s.StorageDriver))
	}

	s.RedisAddr = strings.TrimSpace(config.String("REDIS_ADDR", ""))
	s.RedisPassword = config.String("REDIS_PASSWORD", "")
	s.RedisDB, err = config.Int("REDIS_DB", 0)
	collect(err)
	s.SlotCacheTTL, err = config.Duration("SLOT_CACHE_TTL", 30*time.Second)
	collect(err)
	s.LeadTime, err = config.Duration("BOOKING_LEAD_TIME", 0)
	collect(err)

	s.DefaultTimezone = config.String("DEFAULT_TIMEZONE", model.DefaultTimezone)
	if _, err := time.LoadLocation(s.DefaultTimezone); err != nil {
		collect(fmt.Errorf("DEFAULT_TIMEZONE: %w", err))
	}

	s.UpsertAttempts, err = config.Int("CLIENT_UPSERT_ATTEMPTS", 3)
	collect(err)
	if s.UpsertAttempts < 1 {
		collect(errors.New("CLIENT_UPSERT_ATTEMPTS must be at least 1"))
	}
	s.UpsertBackoff, err = config.Duration("CLIENT_UPSERT_BACKOFF", 50*time.Millisecond)
	collect(err)

	s.KafkaBrokers = config.String("KAFKA_BROKERS", "")
	s.KafkaGroupID = config.String("KAFKA_GROUP_ID", "booking-service")
	s.OutboxPollInterval, err = config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second)
	collect(err)

	s.CORSOrigins = config.List("CORS_ALLOWED_ORIGINS")
	s.RateLimitPerMinute, err = config.Int("RATE_LIMIT_PER_MINUTE", 0)
	collect(err)

	return s, errors.Join(errs...)
}

// instanceGroup gives every replica its own consumer group so each one sees
// every availability event and can drop its local cache entries.
func instanceGroup(base string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return base
	}
	return base + "-" + host
}
