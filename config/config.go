// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config collects the settings of the receiver from defaults,
// an optional file "sendfile.yaml", environment variables, and flags,
// in increasing order of precedence.
//
// Environment variables are named after the keys, like SENDFILE_UPLOAD_DIR
// for "upload.dir". SENDFILE_LOG is short for SENDFILE_LOG_FILTER.
package config // import "blitznote.com/src/sendfile/config"

import (
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/text/unicode/norm"

	upload "blitznote.com/src/sendfile"
	"blitznote.com/src/sendfile/logger"
)

// EnvPrefix is prepended to the names of environment variables.
const EnvPrefix = "SENDFILE"

// Config is the complete set of settings.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Upload UploadConfig `mapstructure:"upload"`
	Log    LogConfig    `mapstructure:"log"`
}

// ServerConfig is where and how the receiver listens.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	// 0 to have one picked.
	Port uint16 `mapstructure:"port"`
	// Uploads per client. 0 disables the limit.
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// UploadConfig is where received files go and what they may look like.
type UploadConfig struct {
	// Defaults to "<downloads>/send-file".
	Dir               string `mapstructure:"dir"`
	MaxRequestSize    uint64 `mapstructure:"max_request_size"`
	MaxFileSize       uint64 `mapstructure:"max_file_size"`
	MaxNameCollisions int    `mapstructure:"max_name_collisions"`
	// One of NFC, NFD, NFKC, NFKD, or "none".
	FilenamesForm string `mapstructure:"filenames_form"`
	// Unicode ranges as understood by upload.ParseUnicodeBlockList.
	FilenamesIn string        `mapstructure:"filenames_in"`
	StaleAfter  time.Duration `mapstructure:"stale_after"`
}

// LogConfig selects what gets logged and where to.
type LogConfig struct {
	Filter    string `mapstructure:"filter"`
	Format    string `mapstructure:"format"`
	Output    string `mapstructure:"output"`
	FilePath  string `mapstructure:"file_path"`
	AddSource bool   `mapstructure:"add_source"`
}

// Flags lists the command line flags understood by Load.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("sendfile", pflag.ContinueOnError)
	fs.StringP("config", "c", "", "path to the configuration file")
	fs.String("host", "", "address to listen on")
	fs.Uint16P("port", "p", 0, "port to listen on, 0 picks an unused one")
	fs.StringP("dir", "d", "", "directory which receives the files")
	fs.Uint64("max-request-size", 0, "maximum payload of one request in bytes")
	fs.Uint64("max-file-size", 0, "maximum size of one file in bytes, 0 for no limit")
	fs.String("log", "", `log filter, like "debug" or "core=debug,http=info"`)
	return fs
}

var flagKeys = map[string]string{
	"host":             "server.host",
	"port":             "server.port",
	"dir":              "upload.dir",
	"max-request-size": "upload.max_request_size",
	"max-file-size":    "upload.max_file_size",
	"log":              "log.filter",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 0)
	v.SetDefault("server.requests_per_minute", 300)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("upload.dir", "")
	v.SetDefault("upload.max_request_size", upload.DefaultMaxTransactionSize)
	v.SetDefault("upload.max_file_size", 0)
	v.SetDefault("upload.max_name_collisions", upload.DefaultMaxNameCollisions)
	v.SetDefault("upload.filenames_form", "NFC")
	v.SetDefault("upload.filenames_in", "")
	v.SetDefault("upload.stale_after", upload.DefaultSweepStaleAfter)

	v.SetDefault("log.filter", logger.DefaultFilter)
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("log.file_path", "")
	v.SetDefault("log.add_source", false)
}

// Load reads the configuration. 'flags' is optional, and should have been obtained from Flags and parsed.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("sendfile")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, upload.AppDirName))
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("log.filter", EnvPrefix+"_LOG", EnvPrefix+"_LOG_FILTER"); err != nil {
		return nil, err
	}

	if flags != nil {
		if path, _ := flags.GetString("config"); path != "" {
			v.SetConfigFile(path)
		}
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errors.Wrapf(err, "flag --%s", name)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "read configuration")
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, errors.Wrap(err, "decode configuration")
	}
	if c.Upload.Dir == "" {
		dir, err := upload.DefaultDestination()
		if err != nil {
			return nil, err
		}
		c.Upload.Dir = dir
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	if c.Server.RequestsPerMinute < 0 {
		return errors.Errorf("server.requests_per_minute must not be negative, is %d", c.Server.RequestsPerMinute)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.Errorf("server.shutdown_timeout must be positive, is %s", c.Server.ShutdownTimeout)
	}
	if _, err := parseForm(c.Upload.FilenamesForm); err != nil {
		return err
	}
	if _, err := logger.ParseFilter(c.Log.Filter); err != nil {
		return errors.Wrap(err, "log.filter")
	}
	return nil
}

func parseForm(s string) (*norm.Form, error) {
	var form norm.Form
	switch strings.ToUpper(s) {
	case "", "NONE":
		return nil, nil
	case "NFC":
		form = norm.NFC
	case "NFD":
		form = norm.NFD
	case "NFKC":
		form = norm.NFKC
	case "NFKD":
		form = norm.NFKD
	default:
		return nil, errors.Errorf("upload.filenames_form: unknown Unicode normalization form %q", s)
	}
	return &form, nil
}

// UploadConfiguration translates the settings for the upload handler.
func (c *Config) UploadConfiguration() (*upload.Configuration, error) {
	cfg := upload.NewDefaultConfiguration(c.Upload.Dir)
	cfg.MaxTransactionSize = c.Upload.MaxRequestSize
	cfg.MaxFilesize = c.Upload.MaxFileSize
	cfg.MaxNameCollisions = c.Upload.MaxNameCollisions
	cfg.SweepStaleAfter = c.Upload.StaleAfter

	form, err := parseForm(c.Upload.FilenamesForm)
	if err != nil {
		return nil, err
	}
	cfg.UnicodeForm = form

	if c.Upload.FilenamesIn != "" {
		rt, err := upload.ParseUnicodeBlockList(c.Upload.FilenamesIn)
		if err != nil {
			return nil, errors.Wrap(err, "upload.filenames_in")
		}
		cfg.RestrictFilenamesTo = []*unicode.RangeTable{rt}
	}
	return cfg, nil
}

// LoggerOptions translates the settings for logger.Init.
func (c *Config) LoggerOptions() logger.Options {
	return logger.Options{
		Filter:    c.Log.Filter,
		Format:    c.Log.Format,
		Output:    c.Log.Output,
		FilePath:  c.Log.FilePath,
		AddSource: c.Log.AddSource,
	}
}
