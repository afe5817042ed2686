// Package sanitization keeps credentials and personal data out of deployment logs.
package sanitization

import (
	"fmt"
	"strings"
)

const redactedValue = "[REDACTED]"

const maskedValue = "***masked***"

// AllowedFields are field names that bypass the substring blocklist.
var AllowedFields = map[string]bool{
	"token_count": true,
}

// SanitizationType defines how to sanitize a field.
type SanitizationType int

const (
	FullyRedact SanitizationType = iota
	PartialMask
	MaskEmail
)

// SensitiveFields defines fields that require explicit sanitization behavior, keyed by
// lowercased field name.
var SensitiveFields = map[string]SanitizationType{
	"secret_access_key":     FullyRedact,
	"aws_secret_access_key": FullyRedact,
	"session_token":         FullyRedact,
	"aws_session_token":     FullyRedact,
	"password":              FullyRedact,
	"private_key":           FullyRedact,
	"authorization":         FullyRedact,

	"access_key_id":     PartialMask,
	"aws_access_key_id": PartialMask,
	"account":           PartialMask,
	"account_id":        PartialMask,
	"phone":             PartialMask,

	"invitation_token": FullyRedact,
	"expo_push_token":  FullyRedact,

	"email":         MaskEmail,
	"invited_email": MaskEmail,
}

var blockedSubstrings = []string{
	"secret",
	"token",
	"password",
	"private_key",
	"credential",
	"authorization",
}

// SanitizeLogString removes control characters that could enable log forging.
func SanitizeLogString(value string) string {
	if value == "" {
		return value
	}
	value = strings.ReplaceAll(value, "\r", "")
	value = strings.ReplaceAll(value, "\n", "")
	return value
}

// SanitizeFieldValue sanitizes a field value based on its key name.
func SanitizeFieldValue(key string, value any) any {
	keyLower := strings.ToLower(strings.TrimSpace(key))
	if keyLower == "" || AllowedFields[keyLower] {
		return sanitizeValue(value)
	}

	if typ, ok := SensitiveFields[keyLower]; ok {
		switch typ {
		case PartialMask:
			return maskLast4(value)
		case MaskEmail:
			return maskEmailValue(value)
		default:
			return redactedValue
		}
	}

	for _, substr := range blockedSubstrings {
		if strings.Contains(keyLower, substr) {
			return redactedValue
		}
	}

	return sanitizeValue(value)
}

// MaskFirstLast keeps the first prefixLen and last suffixLen characters and masks the middle.
func MaskFirstLast(value string, prefixLen, suffixLen int) string {
	if value == "" || prefixLen < 0 || suffixLen < 0 || len(value) <= prefixLen+suffixLen {
		return maskedValue
	}
	return value[:prefixLen] + "***" + value[len(value)-suffixLen:]
}

// MaskEmailAddress keeps the first character of the local part and the domain.
func MaskEmailAddress(value string) string {
	value = strings.TrimSpace(value)
	at := strings.LastIndexByte(value, '@')
	if at <= 0 || at == len(value)-1 {
		return redactedValue
	}
	return value[:1] + "***" + value[at:]
}

func sanitizeValue(value any) any {
	switch typed := value.(type) {
	case nil:
		return nil
	case string:
		return SanitizeLogString(typed)
	case []byte:
		return SanitizeLogString(string(typed))
	case bool, int, int32, int64, float64:
		return typed
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			out[k] = SanitizeFieldValue(k, v)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			out[k] = SanitizeFieldValue(k, v)
		}
		return out
	case []string:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = SanitizeLogString(typed[i])
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = sanitizeValue(typed[i])
		}
		return out
	case error:
		return SanitizeLogString(typed.Error())
	default:
		return SanitizeLogString(fmt.Sprintf("%v", typed))
	}
}

func maskLast4(value any) string {
	s, ok := asString(value)
	if !ok {
		return redactedValue
	}
	s = strings.TrimSpace(s)
	if len(s) <= 4 {
		return redactedValue
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}

func maskEmailValue(value any) string {
	s, ok := asString(value)
	if !ok {
		return redactedValue
	}
	return MaskEmailAddress(s)
}

func asString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	default:
		return "", false
	}
}
