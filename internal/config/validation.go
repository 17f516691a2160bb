package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate = validator.New()

// Validate 先按 struct tag 校验，再执行无法用 tag 表达的规则。
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	names := make(map[string]bool)
	for i, p := range cfg.Storage.Providers {
		if names[p.Name] {
			return fmt.Errorf("storage.providers[%d]: duplicate provider name %q", i, p.Name)
		}
		names[p.Name] = true
	}

	if cfg.Ledger.Type == "mysql" && cfg.Ledger.MySQL.DSN == "" {
		return fmt.Errorf("ledger.mysql.dsn: required when ledger.type is mysql")
	}
	if cfg.Search.Type == "elasticsearch" && cfg.Elasticsearch.Addresses == "" {
		return fmt.Errorf("elasticsearch.addresses: required when search.type is elasticsearch")
	}
	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
