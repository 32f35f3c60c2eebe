package transform

import (
	"strings"
	"time"
)

// sensitiveKeys are removed from payloads wherever they appear.
var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"passwd":        {},
	"secret":        {},
	"token":         {},
	"apikey":        {},
	"api_key":       {},
	"authorization": {},
	"credentials":   {},
	"private_key":   {},
}

// Timestamp stamps the payload with an RFC3339 "timestamp" if absent.
func Timestamp() Transformer {
	return Func("timestamp", func(_ string, payload map[string]any) (map[string]any, error) {
		if _, ok := payload["timestamp"]; !ok {
			payload["timestamp"] = time.Now().UTC().Format(time.RFC3339)
		}
		return payload, nil
	})
}

// Redact strips password-like keys and masks email addresses wherever they
// appear in the payload tree.
func Redact() Transformer {
	return Func("redact", func(_ string, payload map[string]any) (map[string]any, error) {
		redactMap(payload)
		return payload, nil
	})
}

func redactMap(m map[string]any) {
	for k, v := range m {
		if _, bad := sensitiveKeys[strings.ToLower(k)]; bad {
			delete(m, k)
			continue
		}
		switch t := v.(type) {
		case map[string]any:
			redactMap(t)
		case []any:
			for _, e := range t {
				if sm, ok := e.(map[string]any); ok {
					redactMap(sm)
				}
			}
		case string:
			if looksLikeEmail(t) {
				m[k] = MaskEmail(t)
			}
		}
	}
}

func looksLikeEmail(s string) bool {
	at := strings.Index(s, "@")
	return at > 0 && at < len(s)-1 && strings.Contains(s[at:], ".") && !strings.ContainsAny(s, " \t\n")
}

// MaskEmail masks the local part to the form ab***@domain.
func MaskEmail(addr string) string {
	at := strings.Index(addr, "@")
	if at <= 0 {
		return addr
	}
	local := addr[:at]
	if len(local) > 2 {
		local = local[:2]
	}
	return local + "***" + addr[at:]
}

// Severity attaches a computed severity flag to alert-class events. Other
// event types pass through untouched, so it is safe to register globally.
func Severity() Transformer {
	return Func("severity", func(eventType string, payload map[string]any) (map[string]any, error) {
		if _, ok := payload["severity"]; ok {
			return payload, nil
		}
		switch {
		case strings.HasPrefix(eventType, "security."):
			payload["severity"] = "critical"
		case strings.HasPrefix(eventType, "alert."):
			payload["severity"] = "warning"
		}
		return payload, nil
	})
}

// RegisterDefaults installs the built-in transformers on a pipeline.
func RegisterDefaults(p *Pipeline) {
	p.RegisterGlobal(Timestamp())
	p.RegisterGlobal(Redact())
	p.RegisterGlobal(Severity())
}
