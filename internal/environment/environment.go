// Package environment describes the device a verification runs on.
//
// The descriptor feeds both the identity fingerprint and the device
// signature. It is probed fresh for every computation; nothing here caches
// values across a session boundary.
package environment

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Descriptor is the set of environment facts the identity layer consumes.
type Descriptor struct {
	UserAgent    string `json:"user_agent"`
	ScreenWidth  int    `json:"screen_width"`
	ScreenHeight int    `json:"screen_height"`
	Timezone     string `json:"timezone"`
	Locale       string `json:"locale"`
}

// Resolution formats the screen size as "WxH".
func (d Descriptor) Resolution() string {
	return fmt.Sprintf("%dx%d", d.ScreenWidth, d.ScreenHeight)
}

// Prober produces a Descriptor on demand.
type Prober interface {
	Probe() Descriptor
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func() Descriptor

// Probe calls f.
func (f ProberFunc) Probe() Descriptor { return f() }

// Static always returns the same descriptor. Used by tests and by callers
// that replay a recorded environment.
type Static Descriptor

// Probe returns the wrapped descriptor.
func (s Static) Probe() Descriptor { return Descriptor(s) }

// DefaultSysfs is where Host and FindAccelerometer look for device facts.
const DefaultSysfs = "/sys"

// Host probes the local machine: kernel identity for the user agent, the
// display resolution, TZ and locale variables.
//
// The resolution never comes from the terminal window, which changes on
// every resize. It is the configured Screen, else the framebuffer size,
// else 0x0.
type Host struct {
	// Product prefixes the user agent, e.g. "mirrorgate/1.0".
	Product string

	// Screen is the configured display resolution as "WxH".
	Screen string

	getenv func(string) string
	sysfs  string
}

// NewHost creates a host prober.
func NewHost(product string) *Host {
	return &Host{Product: product, getenv: os.Getenv, sysfs: DefaultSysfs}
}

// Probe reads the current environment.
func (h *Host) Probe() Descriptor {
	getenv := h.getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	d := Descriptor{
		UserAgent: h.userAgent(),
		Timezone:  Timezone(getenv),
		Locale:    Locale(getenv),
	}
	d.ScreenWidth, d.ScreenHeight = h.resolution()
	return d
}

func (h *Host) resolution() (int, int) {
	if h.Screen != "" {
		if w, ht, err := ParseResolution(h.Screen); err == nil {
			return w, ht
		}
	}
	sysfs := h.sysfs
	if sysfs == "" {
		sysfs = DefaultSysfs
	}
	if w, ht, ok := framebufferSize(sysfs); ok {
		return w, ht
	}
	return 0, 0
}

// framebufferSize reads the primary framebuffer's virtual size, which the
// kernel reports as "W,H".
func framebufferSize(sysfs string) (int, int, bool) {
	data, err := os.ReadFile(filepath.Join(sysfs, "class", "graphics", "fb0", "virtual_size"))
	if err != nil {
		return 0, 0, false
	}
	ws, hs, ok := strings.Cut(strings.TrimSpace(string(data)), ",")
	if !ok {
		return 0, 0, false
	}
	w, errW := strconv.Atoi(ws)
	ht, errH := strconv.Atoi(hs)
	if errW != nil || errH != nil || w <= 0 || ht <= 0 {
		return 0, 0, false
	}
	return w, ht, true
}

// ParseResolution parses "WxH" with positive dimensions.
func ParseResolution(s string) (int, int, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return 0, 0, fmt.Errorf("resolution %q is not WxH", s)
	}
	w, errW := strconv.Atoi(strings.TrimSpace(ws))
	ht, errH := strconv.Atoi(strings.TrimSpace(hs))
	if errW != nil || errH != nil || w <= 0 || ht <= 0 {
		return 0, 0, fmt.Errorf("resolution %q is not WxH", s)
	}
	return w, ht, nil
}

func (h *Host) userAgent() string {
	product := h.Product
	if product == "" {
		product = "mirrorgate"
	}
	sys, release := kernelIdentity()
	if sys == "" {
		return fmt.Sprintf("%s (%s; %s)", product, runtime.GOOS, runtime.GOARCH)
	}
	return fmt.Sprintf("%s (%s; %s; %s %s)", product, runtime.GOOS, runtime.GOARCH, sys, release)
}

// Timezone returns the IANA zone name of the local clock. TZ wins, then the
// /etc/localtime link target, then the Go runtime's notion of Local.
func Timezone(getenv func(string) string) string {
	if tz := strings.TrimPrefix(getenv("TZ"), ":"); tz != "" {
		return tz
	}
	if target, err := os.Readlink("/etc/localtime"); err == nil {
		if i := strings.Index(target, "zoneinfo/"); i >= 0 {
			return filepath.ToSlash(target[i+len("zoneinfo/"):])
		}
	}
	if name := time.Local.String(); name != "" && name != "Local" {
		return name
	}
	return "UTC"
}

// Locale returns the BCP 47 tag of the user's language, following the
// POSIX precedence LC_ALL > LC_MESSAGES > LANG.
func Locale(getenv func(string) string) string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := getenv(key); v != "" {
			return NormalizeLocale(v)
		}
	}
	return language.Und.String()
}

// NormalizeLocale converts POSIX locale names ("en_US.UTF-8",
// "de_DE@euro") to BCP 47 ("en-US", "de-DE"). "C" and "POSIX" map to
// "und", as does anything unparseable.
func NormalizeLocale(posix string) string {
	s := posix
	if i := strings.IndexAny(s, ".@"); i >= 0 {
		s = s[:i]
	}
	s = strings.ReplaceAll(s, "_", "-")
	if s == "" || s == "C" || s == "POSIX" {
		return language.Und.String()
	}
	tag, err := language.Parse(s)
	if err != nil {
		return language.Und.String()
	}
	return tag.String()
}
