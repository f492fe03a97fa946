package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// MinTempPasswordLength is the shortest temporary password the enrollment workflow may issue.
const MinTempPasswordLength = 10

type (
	Config struct {
		AppName         string
		Env             string // DEV (local; default), TEST, QA, PROD
		Build           string
		Debug           bool
		TestMode        bool
		SecretKey       string
		FrontendBaseURL string
		WorkDir         string
		RollbarToken    string
		SendgridApiKey  string

		PasswordResetTimeoutDelta time.Duration
		PasswordResetPath         string

		defaultFromEmail string

		Server     ServerConfig
		Database   DatabaseConfig
		Enrollment EnrollmentConfig
	}

	ServerConfig struct {
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	EnrollmentConfig struct {
		TempPasswordLength int
		BcryptCost         int
		NotifyRejections   bool
		LoginPath          string
	}
)

// NewConfig reads the configuration from the environment.
// Variables are prefixed with the environment name, eg: DEV_DATABASE_HOST.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("appName", "Admissions")
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("secretKey", "q8w-(3zj&u1ab!k2$v@e7n+0x^5ry#p)s4gfm6l*9oh_dtc=")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("workDir", Getwd())
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("defaultFromEmail", "Admissions <noreply@localhost>")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("passwordResetPath", "/password-reset")

	v.SetDefault("server.host", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "admissions")
	v.SetDefault("database.user", "admissions")
	v.SetDefault("database.password", "admissions")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("enrollment.tempPasswordLength", 12)
	v.SetDefault("enrollment.bcryptCost", 0) // bcrypt.DefaultCost
	v.SetDefault("enrollment.notifyRejections", false)
	v.SetDefault("enrollment.loginPath", "/login")

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	case "QA", "PROD":
		v.SetDefault("debug", false)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return configFromViper(v, env)
}

func configFromViper(v *viper.Viper, env string) *Config {
	conf := &Config{
		AppName:          v.GetString("appName"),
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		SecretKey:        v.GetString("secretKey"),
		FrontendBaseURL:  strings.TrimRight(v.GetString("frontendBaseURL"), "/"),
		WorkDir:          v.GetString("workDir"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		defaultFromEmail: v.GetString("defaultFromEmail"),

		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		PasswordResetPath:         v.GetString("passwordResetPath"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			DebugHost:                 v.GetString("server.debugHost"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Enrollment: EnrollmentConfig{
			TempPasswordLength: v.GetInt("enrollment.tempPasswordLength"),
			BcryptCost:         v.GetInt("enrollment.bcryptCost"),
			NotifyRejections:   v.GetBool("enrollment.notifyRejections"),
			LoginPath:          v.GetString("enrollment.loginPath"),
		},
	}
	if conf.Enrollment.TempPasswordLength < MinTempPasswordLength {
		conf.Enrollment.TempPasswordLength = MinTempPasswordLength
	}
	return conf
}

// DefaultFromEmail parses the configured sender; falls back to a bare address when it is not RFC 5322 compliant.
func (c *Config) DefaultFromEmail() mail.Address {
	if addr, err := mail.ParseAddress(c.defaultFromEmail); err == nil {
		return *addr
	}
	return mail.Address{Name: c.AppName, Address: c.defaultFromEmail}
}

// SetDefaultFromEmail overrides the sender used for outgoing emails.
func (c *Config) SetDefaultFromEmail(from string) {
	c.defaultFromEmail = from
}

// LoginURL is the frontend page learners sign in from.
func (c *Config) LoginURL() string {
	return c.FrontendBaseURL + c.Enrollment.LoginPath
}

// PasswordResetURL is the frontend page confirming a password reset, eg: /password-reset/{uid}/{token}.
func (c *Config) PasswordResetURL(uid, token string) string {
	return c.FrontendBaseURL + path.Join(c.PasswordResetPath, uid, token)
}

func (db DatabaseConfig) Address() string {
	return net.JoinHostPort(db.Host, strconv.Itoa(db.Port))
}
