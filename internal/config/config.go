package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	GatewayRazorpay = "razorpay"
	GatewayStripe   = "stripe"
)

type Config struct {
	ServiceName    string
	Host           string
	Port           int
	EndpointPrefix string
	GinMode        string

	DatabaseURL string

	Gateway           string
	RazorpayKeyID     string
	RazorpayKeySecret string
	StripeKey         string
	// CallbackSecret verifies the client payment callback, WebhookSecret the server-to-server webhook.
	CallbackSecret string
	WebhookSecret  string
	GatewayTimeout time.Duration

	Currency              string
	CurrencyConvRate      decimal.Decimal
	RewardThresholdMinor  int64
	RewardDiscountPercent int
	RewardCouponTTL       time.Duration

	JWTPublicKeyPath string

	KafkaBrokers []string
	RedisAddr    string
	ConsulAddr   string

	// parseErrs collects malformed values found by Load; Validate reports them.
	parseErrs []error
}

// Load reads the environment once. Call godotenv.Load before it when a .env file is used.
func Load() (Config, error) {
	var e env

	cfg := Config{
		ServiceName:    e.get("SERVICE_NAME", "checkout"),
		Host:           e.get("SERVICE_HOST", "localhost"),
		Port:           e.getInt("SERVICE_PORT", 8085),
		EndpointPrefix: e.get("SERVICE_ENDPOINT_PREFIX", "/checkout"),
		GinMode:        e.get("GIN_MODE", "debug"),

		DatabaseURL: e.get("DATABASE_URL", ""),

		Gateway:           strings.ToLower(e.get("PAYMENT_GATEWAY", GatewayRazorpay)),
		RazorpayKeyID:     e.get("RAZORPAY_KEY_ID", ""),
		RazorpayKeySecret: e.get("RAZORPAY_KEY_SECRET", ""),
		StripeKey:         e.get("STRIPE_TEST_KEY", ""),
		WebhookSecret:     e.get("WEBHOOK_SECRET", ""),
		GatewayTimeout:    e.getDuration("GATEWAY_TIMEOUT", 10*time.Second),

		Currency:              strings.ToUpper(e.get("CHECKOUT_CURRENCY", "INR")),
		CurrencyConvRate:      e.getDecimal("CURRENCY_CONVERSION_RATE", "80"),
		RewardThresholdMinor:  e.getInt64("REWARD_THRESHOLD_MINOR", 2000000),
		RewardDiscountPercent: e.getInt("REWARD_DISCOUNT_PERCENT", 10),
		RewardCouponTTL:       e.getDuration("REWARD_COUPON_TTL", 30*24*time.Hour),

		JWTPublicKeyPath: e.get("JWT_PUBLIC_KEY_PATH", "pubkey.pem"),

		KafkaBrokers: splitList(e.get("KAFKA_BROKERS", "")),
		RedisAddr:    e.get("REDIS_ADDR", ""),
		ConsulAddr:   e.get("CONSUL_HTTP_ADDR", ""),
	}

	// Razorpay signs the client callback with the API key secret; Stripe has no such
	// callback so the frontend contract uses a dedicated secret.
	cfg.CallbackSecret = cfg.RazorpayKeySecret
	if cfg.Gateway == GatewayStripe {
		cfg.CallbackSecret = e.get("CHECKOUT_SIGNING_SECRET", "")
	}
	cfg.parseErrs = e.errs

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	errs := append([]error(nil), c.parseErrs...)
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	switch c.Gateway {
	case GatewayRazorpay:
		if c.RazorpayKeyID == "" || c.RazorpayKeySecret == "" {
			errs = append(errs, errors.New("RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET are required"))
		}
	case GatewayStripe:
		if c.StripeKey == "" {
			errs = append(errs, errors.New("STRIPE_TEST_KEY is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported PAYMENT_GATEWAY %q", c.Gateway))
	}
	if c.CallbackSecret == "" {
		errs = append(errs, errors.New("payment callback secret is empty"))
	}
	if !c.CurrencyConvRate.IsPositive() {
		errs = append(errs, errors.New("CURRENCY_CONVERSION_RATE must be positive"))
	}
	if c.RewardDiscountPercent < 0 || c.RewardDiscountPercent > 100 {
		errs = append(errs, errors.New("REWARD_DISCOUNT_PERCENT must be between 0 and 100"))
	}
	if c.RewardThresholdMinor <= 0 {
		errs = append(errs, errors.New("REWARD_THRESHOLD_MINOR must be positive"))
	}
	return errors.Join(errs...)
}

// env reads typed values and remembers the ones it could not parse.
type env struct {
	errs []error
}

func (e *env) get(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func (e *env) fail(k, v string, err error) {
	e.errs = append(e.errs, fmt.Errorf("invalid %s %q: %w", k, v, err))
}

func (e *env) getInt(k string, def int) int {
	v := e.get(k, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(k, v, err)
		return def
	}
	return n
}

func (e *env) getInt64(k string, def int64) int64 {
	v := e.get(k, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		e.fail(k, v, err)
		return def
	}
	return n
}

func (e *env) getDuration(k string, def time.Duration) time.Duration {
	v := e.get(k, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(k, v, err)
		return def
	}
	return d
}

func (e *env) getDecimal(k, def string) decimal.Decimal {
	v := e.get(k, def)
	d, err := decimal.NewFromString(v)
	if err != nil {
		e.fail(k, v, err)
		return decimal.Zero
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
