// Package config читает настройки patrol-engine из переменных окружения.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/shaiso/patrol/internal/domain"
	"github.com/shaiso/patrol/internal/mq"
	"github.com/shaiso/patrol/internal/repo"
)

// Config — настройки движка.
type Config struct {
	RobotIDs       []string // ROBOT_IDS, через запятую
	DefaultRobotID string   // DEFAULT_ROBOT_ID

	MaxRetries         int           // ROBOT_MAX_RETRIES
	RetryBaseDelay     time.Duration // ROBOT_RETRY_BASE_DELAY
	RetryMaxDelay      time.Duration // ROBOT_RETRY_MAX_DELAY
	MovementMaxRetries int           // MOVEMENT_MAX_RETRIES

	ShelfPollInterval time.Duration // SHELF_POLL_INTERVAL
	SideEffectTimeout time.Duration // SIDE_EFFECT_TIMEOUT

	DatabaseURL string // DB_URL; пусто — без архива
	RabbitMQURL string // RABBITMQ_URL; пусто — без брокера
	Port        string // ENGINE_PORT

	SimLatency time.Duration // SIM_LATENCY
}

// Default возвращает настройки по умолчанию.
func Default() Config {
	return Config{
		RobotIDs:           []string{domain.DefaultRobotID},
		DefaultRobotID:     domain.DefaultRobotID,
		MaxRetries:         3,
		RetryBaseDelay:     2 * time.Second,
		RetryMaxDelay:      10 * time.Second,
		MovementMaxRetries: 2,
		ShelfPollInterval:  3 * time.Second,
		SideEffectTimeout:  30 * time.Second,
		DatabaseURL:        repo.DefaultURL,
		RabbitMQURL:        mq.DefaultURL(),
		Port:               "8090",
		SimLatency:         200 * time.Millisecond,
	}
}

// Load читает окружение поверх Default. Все ошибки разбора
// возвращаются одной ошибкой.
func Load() (Config, error) {
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	p := parser{lookup: lookup}

	if v, ok := lookup("ROBOT_IDS"); ok {
		cfg.RobotIDs = splitList(v)
	}
	p.str("DEFAULT_ROBOT_ID", &cfg.DefaultRobotID)
	p.integer("ROBOT_MAX_RETRIES", &cfg.MaxRetries)
	p.duration("ROBOT_RETRY_BASE_DELAY", &cfg.RetryBaseDelay)
	p.duration("ROBOT_RETRY_MAX_DELAY", &cfg.RetryMaxDelay)
	p.integer("MOVEMENT_MAX_RETRIES", &cfg.MovementMaxRetries)
	p.duration("SHELF_POLL_INTERVAL", &cfg.ShelfPollInterval)
	p.duration("SIDE_EFFECT_TIMEOUT", &cfg.SideEffectTimeout)
	p.raw("DB_URL", &cfg.DatabaseURL)
	p.raw("RABBITMQ_URL", &cfg.RabbitMQURL)
	p.str("ENGINE_PORT", &cfg.Port)
	p.duration("SIM_LATENCY", &cfg.SimLatency)

	if len(cfg.RobotIDs) == 0 {
		p.fail("ROBOT_IDS", "at least one robot is required")
	}
	if cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		p.fail("ROBOT_RETRY_MAX_DELAY", "must not be less than ROBOT_RETRY_BASE_DELAY")
	}

	return cfg, p.errs.ErrorOrNil()
}

// Addr возвращает адрес HTTP-сервера метрик.
func (c Config) Addr() string {
	return ":" + c.Port
}

type parser struct {
	lookup func(string) (string, bool)
	errs   *multierror.Error
}

func (p *parser) fail(key, msg string) {
	p.errs = multierror.Append(p.errs, fmt.Errorf("%s: %s", key, msg))
}

// str — непустое значение заменяет default.
func (p *parser) str(key string, dst *string) {
	if v, ok := p.lookup(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

// raw — любое заданное значение, включая пустое, заменяет default.
func (p *parser) raw(key string, dst *string) {
	if v, ok := p.lookup(key); ok {
		*dst = strings.TrimSpace(v)
	}
}

func (p *parser) integer(key string, dst *int) {
	v, ok := p.lookup(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		p.fail(key, fmt.Sprintf("invalid non-negative integer %q", v))
		return
	}
	*dst = n
}

// duration принимает и Go-формат ("1.5s"), и число секунд ("1.5").
func (p *parser) duration(key string, dst *time.Duration) {
	v, ok := p.lookup(key)
	if !ok || v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		*dst = d
		return
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 {
		*dst = time.Duration(secs * float64(time.Second))
		return
	}
	p.fail(key, fmt.Sprintf("invalid duration %q", v))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
