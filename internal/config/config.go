// Package config loads and stores the notelink settings file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pwflint/obsidian-things-export/internal/note"
	storagefs "github.com/pwflint/obsidian-things-export/internal/storage/fs"
	"github.com/pwflint/obsidian-things-export/internal/things"
)

var (
	ErrInvalid    = errors.New("invalid")
	ErrUnknownKey = errors.New("unknown config key")
)

const (
	FileName      = "config.json"
	EnvRoot       = "NOTELINK_ROOT"
	DefaultListen = "127.0.0.1:7317"

	schemaVersion     = 1
	defaultDateFormat = "YYYY-MM-DD"
)

type Config struct {
	Schema int          `json:"schema"`
	Things ThingsConfig `json:"things"`
	Notes  NotesConfig  `json:"notes"`
	Tags   TagsConfig   `json:"tags"`
	Daemon DaemonConfig `json:"daemon"`
}

type ThingsConfig struct {
	Scheme         string `json:"scheme"`
	CallbackScheme string `json:"callback_scheme"`
	Area           string `json:"area,omitempty"`
	IncludeDates   bool   `json:"include_dates"`
	MarkCompleted  bool   `json:"mark_completed"`
	Opener         string `json:"opener,omitempty"` // empty: open on darwin, xdg-open elsewhere
	CreateTags     bool   `json:"create_tags"`
}

type NotesConfig struct {
	OmitNotes       bool   `json:"omit_notes"`
	StripFormatting bool   `json:"strip_formatting"`
	DateFormat      string `json:"date_format"`
	Backlink        bool   `json:"backlink"`
	VaultName       string `json:"vault_name,omitempty"` // empty: base name of daemon.vault
}

type TagsConfig struct {
	Mapping []string `json:"mapping,omitempty"` // from:to
	Style   string   `json:"style"`             // plain|things
}

type DaemonConfig struct {
	Listen string `json:"listen"`
	Vault  string `json:"vault,omitempty"`
}

func Default() Config {
	return Config{
		Schema: schemaVersion,
		Things: ThingsConfig{
			Scheme:         things.DefaultScheme,
			CallbackScheme: things.DefaultCallbackScheme,
		},
		Notes:  NotesConfig{DateFormat: defaultDateFormat},
		Tags:   TagsConfig{Style: note.TagStylePlain},
		Daemon: DaemonConfig{Listen: DefaultListen},
	}
}

func (c *Config) fillDefaults() {
	def := Default()
	if c.Schema == 0 {
		c.Schema = schemaVersion
	}
	if c.Things.Scheme == "" {
		c.Things.Scheme = def.Things.Scheme
	}
	if c.Things.CallbackScheme == "" {
		c.Things.CallbackScheme = def.Things.CallbackScheme
	}
	if c.Notes.DateFormat == "" {
		c.Notes.DateFormat = def.Notes.DateFormat
	}
	if c.Tags.Style == "" {
		c.Tags.Style = def.Tags.Style
	}
	if c.Daemon.Listen == "" {
		c.Daemon.Listen = def.Daemon.Listen
	}
}

// DefaultRoot is NOTELINK_ROOT, else ~/.notelink.
func DefaultRoot() string {
	if env := os.Getenv(EnvRoot); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	if home != "" {
		return filepath.Join(home, ".notelink")
	}
	return ".notelink"
}

// Store is the settings file under a root directory.
type Store struct {
	Root   string
	cfg    Config
	exists bool
}

// Open reads the settings under root. A missing file yields the defaults.
func Open(root string) (*Store, error) {
	s := &Store{Root: ExpandHome(root)}
	b, err := os.ReadFile(s.Path())
	if errors.Is(err, fs.ErrNotExist) {
		s.cfg = Default()
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, s.Path(), err)
	}
	cfg.fillDefaults()
	s.cfg = cfg
	s.exists = true
	return s, nil
}

func (s *Store) Path() string   { return filepath.Join(s.Root, FileName) }
func (s *Store) Exists() bool   { return s.exists }
func (s *Store) Config() Config { return s.cfg }

func (s *Store) Save(cfg Config) error {
	cfg.fillDefaults()
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.Root, 0o755); err != nil {
		return err
	}
	if err := storagefs.WriteFileAtomic(s.Path(), append(b, '\n'), 0o644); err != nil {
		return err
	}
	s.cfg = cfg
	s.exists = true
	return nil
}

// Set validates value for key and saves the result.
func (s *Store) Set(key string, value string) error {
	cfg := s.cfg
	if err := cfg.Set(key, value); err != nil {
		return err
	}
	return s.Save(cfg)
}

var schemeRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*$`)

func (c *Config) Set(key string, value string) error {
	key = strings.ToLower(strings.TrimSpace(key))
	value = strings.TrimSpace(value)
	cleared := value == "" || value == "none" || value == "null"
	switch key {
	case "things.scheme", "things.callback_scheme":
		if !schemeRe.MatchString(value) {
			return invalid(key, value)
		}
		if key == "things.scheme" {
			c.Things.Scheme = value
		} else {
			c.Things.CallbackScheme = value
		}
	case "things.area":
		c.Things.Area = clearOr(cleared, value)
	case "things.opener":
		c.Things.Opener = clearOr(cleared, value)
	case "things.include_dates", "things.mark_completed", "things.create_tags",
		"notes.omit_notes", "notes.strip_formatting", "notes.backlink":
		v, ok := parseBool(value)
		if !ok {
			return invalid(key, value)
		}
		switch key {
		case "things.include_dates":
			c.Things.IncludeDates = v
		case "things.mark_completed":
			c.Things.MarkCompleted = v
		case "things.create_tags":
			c.Things.CreateTags = v
		case "notes.omit_notes":
			c.Notes.OmitNotes = v
		case "notes.backlink":
			c.Notes.Backlink = v
		default:
			c.Notes.StripFormatting = v
		}
	case "notes.vault_name":
		c.Notes.VaultName = clearOr(cleared, value)
	case "notes.date_format":
		if cleared {
			c.Notes.DateFormat = defaultDateFormat
			break
		}
		if !strings.Contains(value, "YYYY") || !strings.Contains(value, "MM") || !strings.Contains(value, "DD") {
			return invalid(key, value)
		}
		c.Notes.DateFormat = value
	case "tags.mapping":
		if cleared {
			c.Tags.Mapping = nil
			break
		}
		var entries []string
		for _, e := range strings.Split(value, ",") {
			from, to, ok := strings.Cut(e, ":")
			if !ok || strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
				return invalid(key, value)
			}
			entries = append(entries, strings.TrimSpace(from)+":"+strings.TrimSpace(to))
		}
		c.Tags.Mapping = entries
	case "tags.style":
		switch strings.ToLower(value) {
		case note.TagStylePlain, note.TagStyleThings:
			c.Tags.Style = strings.ToLower(value)
		default:
			return invalid(key, value)
		}
	case "daemon.listen":
		if _, _, err := net.SplitHostPort(value); err != nil {
			return invalid(key, value)
		}
		c.Daemon.Listen = value
	case "daemon.vault":
		c.Daemon.Vault = clearOr(cleared, value)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return nil
}

// Keys lists every settable key in display order.
func Keys() []string {
	return []string{
		"things.scheme", "things.callback_scheme", "things.area", "things.include_dates",
		"things.mark_completed", "things.opener", "things.create_tags",
		"notes.omit_notes", "notes.strip_formatting", "notes.date_format",
		"notes.backlink", "notes.vault_name",
		"tags.mapping", "tags.style",
		"daemon.listen", "daemon.vault",
	}
}

// Entries renders the settings as key/value pairs in Keys order.
func (c Config) Entries() [][2]string {
	return [][2]string{
		{"things.scheme", c.Things.Scheme},
		{"things.callback_scheme", c.Things.CallbackScheme},
		{"things.area", c.Things.Area},
		{"things.include_dates", strconv.FormatBool(c.Things.IncludeDates)},
		{"things.mark_completed", strconv.FormatBool(c.Things.MarkCompleted)},
		{"things.opener", c.Things.Opener},
		{"things.create_tags", strconv.FormatBool(c.Things.CreateTags)},
		{"notes.omit_notes", strconv.FormatBool(c.Notes.OmitNotes)},
		{"notes.strip_formatting", strconv.FormatBool(c.Notes.StripFormatting)},
		{"notes.date_format", c.Notes.DateFormat},
		{"notes.backlink", strconv.FormatBool(c.Notes.Backlink)},
		{"notes.vault_name", c.Notes.VaultName},
		{"tags.mapping", strings.Join(c.Tags.Mapping, ",")},
		{"tags.style", c.Tags.Style},
		{"daemon.listen", c.Daemon.Listen},
		{"daemon.vault", c.Daemon.Vault},
	}
}

// DateLayout converts the YYYY/MM/DD date format into a time layout.
func (c Config) DateLayout() string {
	format := c.Notes.DateFormat
	if format == "" {
		format = defaultDateFormat
	}
	r := strings.NewReplacer("YYYY", "2006", "MM", "01", "DD", "02")
	return r.Replace(format)
}

func (c Config) NoteOptions() note.Options {
	return note.Options{
		OmitNotes:       c.Notes.OmitNotes,
		StripFormatting: c.Notes.StripFormatting,
		TagMapping:      note.ParseTagMapping(c.Tags.Mapping),
		TagStyle:        c.Tags.Style,
		LinkScheme:      c.Things.Scheme,
	}
}

func (c Config) ThingsOptions() things.Options {
	return things.Options{
		Scheme:         c.Things.Scheme,
		CallbackScheme: c.Things.CallbackScheme,
		Area:           c.Things.Area,
		IncludeDates:   c.Things.IncludeDates,
		MarkCompleted:  c.Things.MarkCompleted,
		DateLayout:     c.DateLayout(),
		CreateTags:     c.Things.CreateTags,
	}
}

func clearOr(cleared bool, value string) string {
	if cleared {
		return ""
	}
	return value
}

func invalid(key string, value string) error {
	return fmt.Errorf("%w: value for %s: %q", ErrInvalid, key, value)
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "on":
		return true, true
	case "0", "false", "no", "n", "off":
		return false, true
	default:
		return false, false
	}
}

func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~"+string(os.PathSeparator)) || path == "~" {
		home, _ := os.UserHomeDir()
		if home != "" {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
