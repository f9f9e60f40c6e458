// Package connection reconciles a connection URL with discrete SMTP server
// settings into one authoritative connection configuration.
package connection

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

var (
	// ErrInvalidConnectionURL is returned when a connection URL cannot be
	// parsed or uses a scheme other than smtp or smtp+starttls.
	ErrInvalidConnectionURL = errors.New("invalid connection URL")

	// ErrMissingHost is returned when no server address survives resolution.
	ErrMissingHost = errors.New("server address must be specified")

	// ErrInvalidPort is returned when the resolved port is not a number in 1-65535.
	ErrInvalidPort = errors.New("invalid server port")
)

const (
	portSMTP        = 25
	portSubmission  = 587
	portImplicitTLS = 465
)

// Discrete holds the individually supplied server settings. An empty string
// means the setting was not supplied.
type Discrete struct {
	Host     string
	Port     string
	Secure   string
	Username string
	Password string
}

// Credentials are the SMTP AUTH username and password.
type Credentials struct {
	Username string
	Password string
}

// Config is the resolved connection configuration.
type Config struct {
	Host        string
	Port        int
	Secure      bool
	Credentials *Credentials
}

// Authenticated reports whether the connection carries credentials.
func (c Config) Authenticated() bool {
	return c.Credentials != nil
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// preset fixes port and security for a connection URL scheme.
type preset struct {
	port   string
	secure bool
}

var presets = map[string]preset{
	"smtp":          {port: strconv.Itoa(portSMTP), secure: false},
	"smtp+starttls": {port: strconv.Itoa(portImplicitTLS), secure: true},
}

// fields is the mutable string form of the configuration while URL
// components are being applied.
type fields struct {
	host     string
	port     string
	secure   bool
	username string
	password string
}

// override copies one URL component onto one discrete field when the
// component is present in the URL.
type override struct {
	field string
	value func(u *url.URL) (string, bool)
	apply func(f *fields, v string)
}

// overrides is the URL-component to discrete-field precedence table, applied
// in order after the scheme preset.
var overrides = []override{
	{
		field: "host",
		value: func(u *url.URL) (string, bool) { return u.Hostname(), u.Hostname() != "" },
		apply: func(f *fields, v string) { f.host = v },
	},
	{
		field: "port",
		value: func(u *url.URL) (string, bool) { return u.Port(), u.Port() != "" },
		apply: func(f *fields, v string) { f.port = v },
	},
	{
		field: "username",
		value: func(u *url.URL) (string, bool) {
			if u.User == nil {
				return "", false
			}
			name := u.User.Username()
			return name, name != ""
		},
		apply: func(f *fields, v string) { f.username = v },
	},
	{
		field: "password",
		value: func(u *url.URL) (string, bool) {
			if u.User == nil {
				return "", false
			}
			pw, ok := u.User.Password()
			return pw, ok && pw != ""
		},
		apply: func(f *fields, v string) { f.password = v },
	},
}

// Resolve merges the discrete settings with an optional connection URL.
//
// Security is seeded from d.Secure when supplied, otherwise from whether the
// port is 465. A connection URL then fixes port and security from its scheme
// and overrides host, port, username and password with whichever of those
// components it carries. Username and password are percent-decoded.
func Resolve(d Discrete, connectionURL string) (Config, error) {
	f := fields{
		host:     d.Host,
		port:     d.Port,
		username: d.Username,
		password: d.Password,
	}

	if d.Secure != "" {
		f.secure = d.Secure == "true"
	} else {
		f.secure = d.Port == strconv.Itoa(portImplicitTLS)
	}

	if connectionURL != "" {
		if err := applyURL(&f, connectionURL); err != nil {
			return Config{}, err
		}
	}

	if f.host == "" {
		return Config{}, ErrMissingHost
	}

	port, err := parsePort(f.port, f.secure)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Host:   f.host,
		Port:   port,
		Secure: f.secure,
	}
	if f.username != "" && f.password != "" {
		cfg.Credentials = &Credentials{Username: f.username, Password: f.password}
	}

	return cfg, nil
}

// Account returns the username that identifies the sending account after
// applying the connection URL, without requiring a server address. It is
// used when the delivery provider does not connect over SMTP.
func Account(d Discrete, connectionURL string) (string, error) {
	f := fields{username: d.Username}
	if connectionURL != "" {
		if err := applyURL(&f, connectionURL); err != nil {
			return "", err
		}
	}
	return f.username, nil
}

func applyURL(f *fields, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConnectionURL, err)
	}

	p, ok := presets[strings.ToLower(u.Scheme)]
	if !ok {
		return fmt.Errorf("%w: unsupported connection protocol '%s:'", ErrInvalidConnectionURL, u.Scheme)
	}
	f.port = p.port
	f.secure = p.secure

	for _, o := range overrides {
		if v, present := o.value(u); present {
			o.apply(f, v)
		}
	}

	return nil
}

func parsePort(s string, secure bool) (int, error) {
	if s == "" {
		if secure {
			return portImplicitTLS, nil
		}
		return portSubmission, nil
	}

	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPort, s)
	}
	return port, nil
}
