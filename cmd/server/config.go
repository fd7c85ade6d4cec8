package main

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/willemschots/webauth/internal/auth"
	"github.com/willemschots/webauth/internal/email"
	"github.com/willemschots/webauth/internal/email/mailgun"
	"github.com/willemschots/webauth/internal/email/postmark"
	"github.com/willemschots/webauth/internal/jwt"
	"github.com/willemschots/webauth/internal/krypto"
	"github.com/willemschots/webauth/internal/web"
)

const (
	transportLog      = "log"
	transportPostmark = "postmark"
	transportMailgun  = "mailgun"

	logFormatText = "text"
	logFormatJSON = "json"
)

// httpConfig is the configuration for the HTTP server.
type httpConfig struct {
	addr            string
	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration
	server          web.ServerConfig
}

type dbConfig struct {
	file           string
	migrate        bool
	encryptionKeys []krypto.Key
}

type jwtConfig struct {
	signingKey krypto.Key
	signer     jwt.Config
}

type emailConfig struct {
	transport string
	service   email.Config
	postmark  postmark.Settings
	mailgun   mailgun.Settings
}

type rateLimitConfig struct {
	// redisAddr is empty when the buckets live in process.
	redisAddr string
}

type logConfig struct {
	format string
	level  slog.Level
}

// config is the configuration for the server command.
type config struct {
	http      httpConfig
	db        dbConfig
	jwt       jwtConfig
	auth      auth.ServiceConfig
	email     emailConfig
	rateLimit rateLimitConfig
	log       logConfig
}

// defaultConfig returns a config with sane default values.
func defaultConfig() config {
	return config{
		http: httpConfig{
			addr:            ":8080",
			readTimeout:     time.Second * 5,
			writeTimeout:    time.Second * 10,
			idleTimeout:     time.Second * 120,
			shutdownTimeout: time.Second * 15,
			server: web.ServerConfig{
				MaxBodyBytes: 1 << 20,
			},
		},
		db: dbConfig{
			file:    "webauth.db",
			migrate: true,
		},
		jwt: jwtConfig{
			signer: jwt.Config{
				Issuer: "webauth",
				TTL:    jwt.DefaultTTL,
			},
		},
		auth: auth.ServiceConfig{
			ResetTokenExpiry: auth.DefaultResetTokenExpiry,
			NotifyTimeout:    time.Second * 10,
		},
		email: emailConfig{
			transport: transportLog,
			service: email.Config{
				VerifyURL: mustURL("http://localhost:8080/api/auth/verify-email"),
				ResetURL:  mustURL("http://localhost:5173/reset-password"),
			},
			postmark: postmark.Settings{
				APIURL:        mustURL(postmark.DefaultAPIURL),
				MessageStream: "outbound",
			},
			mailgun: mailgun.Settings{
				APIURL:   mustURL(mailgun.DefaultAPIURL),
				Username: "api",
			},
		},
		log: logConfig{
			format: logFormatText,
			level:  slog.LevelInfo,
		},
	}
}

// requiredEnv lists the environment variables that have no default.
var requiredEnv = []string{
	"DB_ENCRYPTION_KEYS",
	"JWT_SIGNING_KEY",
	"EMAIL_FROM",
}

// envMap maps environment variable names to fields in the config struct.
var envMap = map[string]func(v string, c *config) error{
	"HTTP_ADDR": func(v string, c *config) error {
		c.http.addr = v
		return nil
	},
	"HTTP_READ_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.readTimeout, 0, math.MaxInt64)
	},
	"HTTP_WRITE_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.writeTimeout, 0, math.MaxInt64)
	},
	"HTTP_IDLE_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.idleTimeout, 0, math.MaxInt64)
	},
	"HTTP_SHUTDOWN_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.shutdownTimeout, 0, math.MaxInt64)
	},
	"HTTP_MAX_BODY_BYTES": func(v string, c *config) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		if n <= 0 {
			return fmt.Errorf("max body bytes must be positive, got %d", n)
		}
		c.http.server.MaxBodyBytes = n
		return nil
	},
	"PHONE_DEFAULT_REGION": func(v string, c *config) error {
		c.http.server.PhoneRegion = v
		return nil
	},
	"DB_FILE": func(v string, c *config) error {
		if v == "" {
			return errors.New("empty database file")
		}
		c.db.file = v
		return nil
	},
	"DB_MIGRATE": func(v string, c *config) error {
		return confBool(v, &c.db.migrate)
	},
	"DB_ENCRYPTION_KEYS": func(v string, c *config) error {
		keys, err := krypto.ParseKeys(v)
		if err != nil {
			return err
		}
		c.db.encryptionKeys = keys
		return nil
	},
	"JWT_SIGNING_KEY": func(v string, c *config) error {
		return confKey(v, &c.jwt.signingKey)
	},
	"JWT_ISSUER": func(v string, c *config) error {
		if v == "" {
			return errors.New("empty issuer")
		}
		c.jwt.signer.Issuer = v
		return nil
	},
	"JWT_TTL": func(v string, c *config) error {
		return confDuration(v, &c.jwt.signer.TTL, time.Second, math.MaxInt64)
	},
	"AUTH_RESET_TOKEN_EXPIRY": func(v string, c *config) error {
		return confDuration(v, &c.auth.ResetTokenExpiry, time.Second, math.MaxInt64)
	},
	"AUTH_NOTIFY_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.auth.NotifyTimeout, time.Millisecond, math.MaxInt64)
	},
	"EMAIL_FROM": func(v string, c *config) error {
		addr, err := email.ParseAddress(v)
		if err != nil {
			return err
		}
		c.email.service.From = addr
		return nil
	},
	"EMAIL_TRANSPORT": func(v string, c *config) error {
		switch v {
		case transportLog, transportPostmark, transportMailgun:
			c.email.transport = v
			return nil
		default:
			return fmt.Errorf("unknown email transport %q", v)
		}
	},
	"EMAIL_VERIFY_URL": func(v string, c *config) error {
		return confURL(v, &c.email.service.VerifyURL)
	},
	"EMAIL_RESET_URL": func(v string, c *config) error {
		return confURL(v, &c.email.service.ResetURL)
	},
	"POSTMARK_API_URL": func(v string, c *config) error {
		return confURL(v, &c.email.postmark.APIURL)
	},
	"POSTMARK_SERVER_TOKEN": func(v string, c *config) error {
		c.email.postmark.ServerToken = krypto.NewSecret(v)
		return nil
	},
	"POSTMARK_MESSAGE_STREAM": func(v string, c *config) error {
		c.email.postmark.MessageStream = v
		return nil
	},
	"MAILGUN_API_URL": func(v string, c *config) error {
		return confURL(v, &c.email.mailgun.APIURL)
	},
	"MAILGUN_DOMAIN": func(v string, c *config) error {
		c.email.mailgun.Domain = v
		return nil
	},
	"MAILGUN_USERNAME": func(v string, c *config) error {
		c.email.mailgun.Username = v
		return nil
	},
	"MAILGUN_PASSWORD": func(v string, c *config) error {
		c.email.mailgun.Password = krypto.NewSecret(v)
		return nil
	},
	"RATE_LIMIT_REDIS_ADDR": func(v string, c *config) error {
		c.rateLimit.redisAddr = v
		return nil
	},
	"LOG_FORMAT": func(v string, c *config) error {
		switch v {
		case logFormatText, logFormatJSON:
			c.log.format = v
			return nil
		default:
			return fmt.Errorf("unknown log format %q", v)
		}
	},
	"LOG_LEVEL": func(v string, c *config) error {
		return c.log.level.UnmarshalText([]byte(v))
	},
}

// configFromEnv returns a config with values from the environment. It falls
// back to default values for any missing environment variables.
//
// It does a best effort to validate provided values, so that mistakes are
// caught ASAP. However, there is no guarantee that the returned config
// is valid and will work.
func configFromEnv() (config, error) {
	c := defaultConfig()

	var errs []error
	for _, key := range requiredEnv {
		if _, ok := os.LookupEnv(key); !ok {
			errs = append(errs, fmt.Errorf("missing required env variable %s", key))
		}
	}

	for key, mf := range envMap {
		if val, ok := os.LookupEnv(key); ok {
			if err := mf(val, &c); err != nil {
				errs = append(errs, fmt.Errorf("invalid env variable %s: %w", key, err))
			}
		}
	}

	if err := c.validateTransport(); err != nil {
		errs = append(errs, err)
	}

	// the reset email mentions how long the link is valid.
	c.email.service.ResetExpiry = c.auth.ResetTokenExpiry

	return c, errors.Join(errs...)
}

// validateTransport checks the settings the selected email transport can't do without.
func (c config) validateTransport() error {
	switch c.email.transport {
	case transportPostmark:
		if c.email.postmark.ServerToken.IsZero() {
			return errors.New("EMAIL_TRANSPORT=postmark requires POSTMARK_SERVER_TOKEN")
		}
	case transportMailgun:
		if c.email.mailgun.Domain == "" || c.email.mailgun.Password.IsZero() {
			return errors.New("EMAIL_TRANSPORT=mailgun requires MAILGUN_DOMAIN and MAILGUN_PASSWORD")
		}
	}
	return nil
}

// confDuration attempts to parse v into tgt and checks if the result is in
// the provided range (inclusive).
func confDuration(v string, tgt *time.Duration, min, max time.Duration) error {
	dur, err := time.ParseDuration(v)
	if err != nil {
		return err
	}

	if dur < min || dur > max {
		return fmt.Errorf("duration %s not in range [%s, %s] (inclusive)", dur, min, max)
	}

	*tgt = dur

	return nil
}

func confBool(v string, tgt *bool) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}
	*tgt = b
	return nil
}

func confKey(v string, tgt *krypto.Key) error {
	k, err := krypto.ParseKey(v)
	if err != nil {
		return err
	}
	*tgt = k
	return nil
}

// confURL only accepts absolute urls.
func confURL(v string, tgt **url.URL) error {
	u, err := url.Parse(v)
	if err != nil {
		return err
	}

	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("url %q is not absolute", v)
	}

	*tgt = u
	return nil
}

func mustURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}
