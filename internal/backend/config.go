package backend

import (
	"fmt"
	"strings"

	"carteira/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.LedgerBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s (valid: %s)",
			appConfig.LedgerBackend, strings.Join(GetBackendTypeStrings(), ", "))
	}
	storeType := StoreType(appConfig.SessionStore)
	if !storeType.IsValid() {
		return Config{}, fmt.Errorf("invalid session store in config: %s", appConfig.SessionStore)
	}

	return Config{
		Type: backendType,

		APIBaseURL: appConfig.APIBaseURL,
		APITimeout: appConfig.APITimeout,

		DataDirectory: appConfig.MemorySeedDir,

		SessionStore:  storeType,
		SessionDBPath: appConfig.SessionDBPath,

		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s (valid: %s)", c.Type, strings.Join(GetBackendTypeStrings(), ", "))
	}
	if !c.SessionStore.IsValid() {
		return fmt.Errorf("invalid session store: %s", c.SessionStore)
	}

	if c.Type == RESTBackend && c.APIBaseURL == "" {
		return fmt.Errorf("API base URL is required for rest backend")
	}
	if c.SessionStore == SQLiteStore && c.SessionDBPath == "" {
		return fmt.Errorf("session database path is required for sqlite session store")
	}
	if c.AMQPURL != "" && c.AMQPExchange == "" {
		return fmt.Errorf("AMQP exchange is required when AMQP URL is set")
	}

	return nil
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	return []string{RESTBackend.String(), MemoryBackend.String()}
}
