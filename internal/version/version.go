// Package version хранит сведения о сборке order-ledger, заполняемые через -ldflags.
package version

import "strings"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GetVersion возвращает версию сборки.
func GetVersion() string { return version }

// GetCommit возвращает commit сборки.
func GetCommit() string { return commit }

// GetDate возвращает дату сборки.
func GetDate() string { return date }

// KafkaClientID возвращает client.id для компонента ledger: order-ledger-<component>-<version>.
// Символы вне [A-Za-z0-9._-] заменяются на '_', иначе sarama отклонит конфигурацию.
func KafkaClientID(component string) string {
	parts := []string{"order-ledger"}
	if component != "" {
		parts = append(parts, component)
	}
	parts = append(parts, version)
	return sanitizeClientID(strings.Join(parts, "-"))
}

func sanitizeClientID(raw string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, raw)
}
