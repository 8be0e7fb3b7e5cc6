// Package config loads the cnvyr configuration file.
//
// The file is YAML. It is checked twice: strictly decoded into Config, and
// validated against an embedded CUE definition that constrains enumerated
// values and formats. Defaults are applied after validation.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"codeberg.org/mentalblood/cnvyr/internal/blob"
	"codeberg.org/mentalblood/cnvyr/internal/conn"
	"codeberg.org/mentalblood/cnvyr/internal/schema"
	"codeberg.org/mentalblood/cnvyr/internal/store"
)

//go:embed schema.cue
var schemaCUE string

// Defaults.
const (
	DefaultPath      = "cnvyr.db"
	DefaultBlobRoot  = "blobs"
	DefaultExtension = ".bin"
	DefaultPGPort    = 5432
)

// Config is the root of the configuration file.
type Config struct {
	Database Database `yaml:"database"`
	Blobs    Blobs    `yaml:"blobs"`
	Retry    Retry    `yaml:"retry"`
}

// Database selects the database. DSN, when set, is passed to the driver
// verbatim; otherwise it is built from the remaining fields.
type Database struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type Blobs struct {
	Root      string `yaml:"root"`
	Extension string `yaml:"extension"`
	Codec     string `yaml:"codec"`
	Hash      string `yaml:"hash"`
}

// Retry bounds reconnect backoff. MaxElapsed 0 retries forever.
type Retry struct {
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	MaxElapsed      time.Duration `yaml:"max_elapsed"`
}

// ValidationError reports a configuration rejected by the CUE schema.
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return "invalid config: " + e.Message
	}
	return fmt.Sprintf("invalid config: %s: %s", e.Path, e.Message)
}

// Kind names the error class for the error log.
func (e *ValidationError) Kind() string { return "ValidationError" }

// IsValidationError returns true if err is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var c Config
	c.applyDefaults()
	return c
}

// Load reads and validates a configuration file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates configuration YAML.
func Parse(data []byte) (Config, error) {
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validate(raw); err != nil {
		return Config{}, err
	}

	c.applyDefaults()
	return c, nil
}

func validate(raw map[string]any) error {
	if raw == nil {
		raw = map[string]any{}
	}
	ctx := cuecontext.New()
	schemaVal := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schemaVal.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schemaVal.LookupPath(cue.ParsePath("#Config"))

	v := def.Unify(ctx.Encode(raw))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err)
	}
	return nil
}

func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &ValidationError{Message: err.Error()}
	}
	first := errs[0]
	format, args := first.Msg()
	return &ValidationError{
		Path:    strings.Join(first.Path(), "."),
		Message: fmt.Sprintf(format, args...),
	}
}

func (c *Config) applyDefaults() {
	d := &c.Database
	if d.Driver == "" {
		d.Driver = "sqlite"
	}
	if d.Path == "" {
		d.Path = DefaultPath
	}
	if d.Port == 0 {
		d.Port = DefaultPGPort
	}

	b := &c.Blobs
	if b.Root == "" {
		b.Root = DefaultBlobRoot
	}
	if b.Extension == "" {
		b.Extension = DefaultExtension
	}
	if b.Codec == "" {
		b.Codec = "gzip"
	}
	if b.Hash == "" {
		b.Hash = "sha512"
	}

	policy := conn.DefaultPolicy()
	if c.Retry.InitialInterval == 0 {
		c.Retry.InitialInterval = policy.InitialInterval
	}
	if c.Retry.MaxInterval == 0 {
		c.Retry.MaxInterval = policy.MaxInterval
	}
}

// Dialect returns the configured database dialect.
func (c Config) Dialect() (schema.Dialect, error) {
	return schema.ByName(c.Database.Driver)
}

// DSN returns the driver data source name.
func (c Config) DSN() (string, error) {
	d := c.Database
	if d.DSN != "" {
		return d.DSN, nil
	}
	dialect, err := c.Dialect()
	if err != nil {
		return "", err
	}
	if dialect.Name() == "sqlite" {
		return d.Path, nil
	}

	// lib/pq keyword/value form.
	var parts []string
	add := func(key, value string) {
		if value != "" {
			parts = append(parts, key+"="+pqQuote(value))
		}
	}
	add("host", d.Host)
	add("port", strconv.Itoa(d.Port))
	add("dbname", d.Name)
	add("user", d.User)
	add("password", d.Password)
	return strings.Join(parts, " "), nil
}

func pqQuote(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// Policy returns the reconnect policy.
func (c Config) Policy() conn.Policy {
	return conn.Policy{
		InitialInterval: c.Retry.InitialInterval,
		MaxInterval:     c.Retry.MaxInterval,
		MaxElapsed:      c.Retry.MaxElapsed,
	}
}

// Store returns the store configuration.
func (c Config) Store() (store.Config, error) {
	dialect, err := c.Dialect()
	if err != nil {
		return store.Config{}, err
	}
	dsn, err := c.DSN()
	if err != nil {
		return store.Config{}, err
	}
	return store.Config{Dialect: dialect, DSN: dsn, Retry: c.Policy()}, nil
}

// Files opens the configured blob store.
func (c Config) Files(opts ...blob.Option) (*blob.Files, error) {
	codec, err := blob.CodecByName(c.Blobs.Codec)
	if err != nil {
		return nil, err
	}
	hasher, err := blob.HasherByName(c.Blobs.Hash)
	if err != nil {
		return nil, err
	}
	opts = append([]blob.Option{blob.WithCodec(codec), blob.WithHasher(hasher)}, opts...)
	return blob.New(c.Blobs.Root, c.Blobs.Extension, opts...)
}

// Redacted returns the DSN with any password masked, for display.
func (c Config) Redacted() string {
	dsn, err := c.DSN()
	if err != nil {
		return ""
	}
	if u, err := url.Parse(dsn); err == nil && u.User != nil {
		return u.Redacted()
	}
	if c.Database.Password != "" {
		return strings.ReplaceAll(dsn, pqQuote(c.Database.Password), "xxxxx")
	}
	return dsn
}
