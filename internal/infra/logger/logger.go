// Package logger builds the service zap logger and masks identifiers before they are logged.
package logger

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a JSON production logger for "production" and a colored console logger otherwise.
// Every entry carries the service name.
func New(env, service string) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if env == "production" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	log, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	if service != "" {
		log = log.With(zap.String("service", service), zap.String("env", env))
	}
	return log, nil
}

var (
	emailRegex = regexp.MustCompile(`^([^@]{1,3})[^@]*(@.+)$`)
	phoneRegex = regexp.MustCompile(`^(\+?\d{1,3})(\d{4,})(\d{4})$`)
)

// MaskIdentifier hides most of a login identifier. Emails keep the first
// three characters and the domain, phone numbers keep the country code and
// last four digits, anything else keeps two characters at each end.
func MaskIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	switch {
	case identifier == "":
		return ""
	case strings.Contains(identifier, "@"):
		return maskEmail(identifier)
	case phoneRegex.MatchString(identifier):
		m := phoneRegex.FindStringSubmatch(identifier)
		return m[1] + "***" + m[3]
	default:
		return maskString(identifier)
	}
}

func maskEmail(email string) string {
	if m := emailRegex.FindStringSubmatch(email); len(m) == 3 {
		return m[1] + "***" + m[2]
	}
	if _, domain, ok := strings.Cut(email, "@"); ok {
		return "***@" + domain
	}
	return "***"
}

func maskString(s string) string {
	if len(s) <= 4 {
		return "***"
	}
	return s[:2] + "***" + s[len(s)-2:]
}

// MaskIP keeps the network half of an address: two octets for IPv4, four groups for IPv6.
func MaskIP(ip string) string {
	switch {
	case ip == "":
		return ""
	case strings.Count(ip, ".") == 3:
		parts := strings.Split(ip, ".")
		return parts[0] + "." + parts[1] + ".*.*"
	case strings.Contains(ip, ":"):
		parts := strings.Split(ip, ":")
		if len(parts) >= 4 {
			return strings.Join(parts[:4], ":") + ":*:*:*:*"
		}
	}
	return "***"
}
