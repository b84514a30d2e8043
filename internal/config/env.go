package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables that override the MQTT section, so credentials can
// stay out of the JSON file.
const (
	EnvMQTTBroker   = "MQTT_BROKER"
	EnvMQTTClientID = "MQTT_CLIENT_ID"
	EnvMQTTUsername = "MQTT_USERNAME"
	EnvMQTTPassword = "MQTT_PASSWORD"
)

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored; variables already set win.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// ApplyEnv copies the MQTT_* variables into the config. A broker from the
// environment enables publishing even if the file has no mqtt section.
func (c *Config) ApplyEnv() {
	set := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	if c.MQTT == nil {
		if v := os.Getenv(EnvMQTTBroker); v == "" {
			return
		}
		c.MQTT = &MQTTConfig{}
	}
	set(EnvMQTTBroker, &c.MQTT.Broker)
	set(EnvMQTTClientID, &c.MQTT.ClientID)
	set(EnvMQTTUsername, &c.MQTT.Username)
	set(EnvMQTTPassword, &c.MQTT.Password)
}
