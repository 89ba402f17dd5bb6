package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// flagNames maps struct namespaces to the flag a user would change.
var flagNames = map[string]string{
	"Configuration.Orb.URL":              "orb-url",
	"Configuration.Orb.MQTTURL":          "orb-mqtt-url",
	"Configuration.Credentials.Email":    "orb-email",
	"Configuration.Credentials.Password": "orb-password",
	"Configuration.Agent.Image":          "agent-image",
	"Configuration.Agent.Interface":      "agent-interface",
	"Configuration.Agent.MinVersion":     "agent-min-version",
	"Configuration.Podman.Socket":        "podman-socket",
	"Configuration.FleetDB.DSN":          "fleetdb-dsn",
	"Configuration.Sink.RemoteHost":      "sink-remote-host",
	"Configuration.Cleanup.Workers":      "cleanup-workers",
	"Configuration.Log.Level":            "log-level",
	"Configuration.Log.Format":           "log-format",
	"Configuration.Log.MaxSizeMB":        "log-max-size",
	"Configuration.Log.MaxBackups":       "log-max-backups",
}

// Validate checks the configuration and reports every invalid field by its flag name.
func (c *Configuration) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	name, ok := flagNames[fe.Namespace()]
	if !ok {
		if strings.HasPrefix(fe.Namespace(), "Configuration.Timeouts.") {
			name = "timeout-" + strings.ToLower(fe.Field())
		} else {
			name = fe.Namespace()
		}
	}

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s cannot be empty", name)
	case "oneof":
		return fmt.Sprintf("invalid %s %q: must be one of %s", name, fe.Value(), fe.Param())
	default:
		return fmt.Sprintf("invalid %s %v: failed %s", name, fe.Value(), fe.Tag())
	}
}
