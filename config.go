package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// defaultListenAddr is the default http listen address.
	defaultListenAddr = ":8080"
)

// Config is the configuration struct for the service.
type Config struct {
	// FMPAPIKey is the FMP service API Key.
	FMPAPIKey string
	// ListenAddr is the http listen address.
	ListenAddr string
	// HistoryLimit is the number of trailing daily bars exposed per symbol.
	HistoryLimit int
	// LongAnchorDays is the anchor window for the long run vwap line.
	LongAnchorDays int
	// ShortAnchorDays is the anchor window for the short run vwap line.
	ShortAnchorDays int
	// OpenAIAPIKey is the OpenAI API key.
	OpenAIAPIKey string
	// AnthropicAPIKey is the Anthropic API key.
	AnthropicAPIKey string
	// GeminiAPIKey is the Gemini API key.
	GeminiAPIKey string

	registeredFlags map[string]bool
}

// Validate asserts the config sane inputs.
func (cfg *Config) Validate() error {
	var errs error

	if cfg.FMPAPIKey == "" {
		errs = errors.Join(errs, fmt.Errorf("fmp api key cannot be an empty string"))
	}
	if cfg.HistoryLimit < 0 {
		errs = errors.Join(errs, fmt.Errorf("history limit cannot be negative"))
	}
	if cfg.LongAnchorDays < 0 || cfg.ShortAnchorDays < 0 {
		errs = errors.Join(errs, fmt.Errorf("anchor windows cannot be negative"))
	}

	return errs
}

// registerFlag registers command line arguments of any type and tracks them to avoid reregistration.
func (cfg *Config) registerFlag(name string, value interface{}, usage string) error {
	if cfg.registeredFlags == nil {
		cfg.registeredFlags = make(map[string]bool)
	}

	if cfg.registeredFlags[name] {
		return nil
	}

	cfg.registeredFlags[name] = true

	defValue := os.Getenv(name)
	val := reflect.ValueOf(value)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("%s: value must be a non-nil pointer", name)
	}

	switch val.Elem().Kind() {
	case reflect.String:
		flag.StringVar(value.(*string), name, defValue, usage)
	case reflect.Bool:
		var def bool
		if defValue != "" {
			def, _ = strconv.ParseBool(defValue)
		}
		flag.BoolVar(value.(*bool), name, def, usage)
	case reflect.Int:
		var def int
		if defValue != "" {
			def, _ = strconv.Atoi(defValue)
		}
		flag.IntVar(value.(*int), name, def, usage)
	case reflect.Slice:
		// Only handle []string
		if val.Elem().Type().Elem().Kind() == reflect.String {
			var def []string
			if defValue != "" {
				def = strings.Split(defValue, ",")
			}
			flag.Func(name, usage, func(s string) error {
				*value.(*[]string) = strings.Split(s, ",")
				return nil
			})
			// Set default if not provided via flag
			if len(def) > 0 {
				*value.(*[]string) = def
			}
		} else {
			return fmt.Errorf("%s: unsupported slice type", name)
		}
	default:
		return fmt.Errorf("%s: unsupported type", name)
	}

	return nil
}

// loadConfig loads the configuration from environment variables and command line flags.
func loadConfig(cfg *Config, path string) error {
	if path == "" {
		path = ".env"
	}

	// Check if the expected .env file exists before loading it.
	_, err := os.Stat(path)
	if err == nil {
		err := godotenv.Load(path)
		if err != nil {
			return fmt.Errorf("loading .env file: %w", err)
		}
	}

	// Register command line arguments using loaded environment variables as defaults.
	err = cfg.registerFlag("fmpapikey", &cfg.FMPAPIKey, "the FMP api key")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("listenaddr", &cfg.ListenAddr, "the http listen address")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("historylimit", &cfg.HistoryLimit, "the number of trailing daily bars exposed per symbol")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("longanchordays", &cfg.LongAnchorDays, "the long run vwap anchor window")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("shortanchordays", &cfg.ShortAnchorDays, "the short run vwap anchor window")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("openaiapikey", &cfg.OpenAIAPIKey, "the OpenAI api key")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("anthropicapikey", &cfg.AnthropicAPIKey, "the Anthropic api key")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("geminiapikey", &cfg.GeminiAPIKey, "the Gemini api key")
	if err != nil {
		return err
	}

	// Parse command-line flags.
	flag.Parse()

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}

	return cfg.Validate()
}
