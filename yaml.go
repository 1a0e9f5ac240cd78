package mailer

import (
	"fmt"
	"io"

	yaml "gopkg.in/yaml.v2"
)

// ParseOptions generates usable mailer options from possibly arbitrary user
// input. An error indicates a problem with parsing or validation; shape
// violations are *ValidationErrors, reachable through errors.As. Note that
// value-level checks, such as the port range, happen later in
// CheckAndSetDefaults, not here.
func ParseOptions(r io.Reader) (Options, error) {
	var o Options
	if err := yaml.NewDecoder(r).Decode(&o); err != nil {
		return Options{}, fmt.Errorf("can't read the mailer config as YAML: %w", err)
	}
	return o, nil
}

// UnmarshalYAML parses a user-provided YAML configuration, returning any
// parsing errors. Fields of the wrong YAML type produce a *ValidationError
// naming the field, since the decoder is the last place we can tell a
// string apart from, say, a sequence.
func (o *Options) UnmarshalYAML(unmarshal func(interface{}) error) error {
	v := make(map[string]interface{})
	if err := unmarshal(&v); err != nil {
		return fmt.Errorf("can't parse the mailer config: %v", err)
	}

	if a, ok := v["auth"]; ok {
		m, err := asMapping(a, "auth", "a mapping with user and pass")
		if err != nil {
			return err
		}
		auth := Auth{}
		if u, ok := m["user"]; ok {
			s, err := asString(u, "auth.user")
			if err != nil {
				return err
			}
			auth.User = s
		}
		if p, ok := m["pass"]; ok {
			s, err := asString(p, "auth.pass")
			if err != nil {
				return err
			}
			auth.Pass = s
		}
		o.Auth = &auth
	}

	if h, ok := v["hostname"]; ok {
		s, err := asString(h, "hostname")
		if err != nil {
			return err
		}
		o.Hostname = s
	}

	if n, ok := v["name"]; ok {
		s, err := asString(n, "name")
		if err != nil {
			return err
		}
		o.Name = s
	}

	// noreply is accepted as a shorthand key for noreplyAddress
	for _, key := range []string{"noreplyAddress", "noreply"} {
		n, ok := v[key]
		if !ok {
			continue
		}
		s, err := asString(n, "noreplyAddress")
		if err != nil {
			return err
		}
		o.NoreplyAddress = s
		break
	}

	if p, ok := v["port"]; ok {
		i, ok := p.(int)
		if !ok {
			return &ValidationError{Field: "port", Expected: "an integer"}
		}
		o.Port = i
	}

	if s, ok := v["secure"]; ok {
		b, ok := s.(bool)
		if !ok {
			return &ValidationError{Field: "secure", Expected: "a boolean"}
		}
		o.Secure = b
	}

	if tl, ok := v["tls"]; ok {
		m, err := asMapping(tl, "tls", "a mapping of TLS settings")
		if err != nil {
			return err
		}
		t := TLSOptions{}
		if sn, ok := m["serverName"]; ok {
			s, err := asString(sn, "tls.serverName")
			if err != nil {
				return err
			}
			t.ServerName = s
		}
		if sv, ok := m["skipVerify"]; ok {
			b, ok := sv.(bool)
			if !ok {
				return &ValidationError{Field: "tls.skipVerify", Expected: "a boolean"}
			}
			t.SkipVerify = b
		}
		if cert, ok := m["cert"]; ok {
			s, err := asString(cert, "tls.cert")
			if err != nil {
				return err
			}
			t.Cert = []byte(s)
		}
		if key, ok := m["key"]; ok {
			s, err := asString(key, "tls.key")
			if err != nil {
				return err
			}
			t.Key = []byte(s)
		}
		o.TLS = &t
	}

	return nil
}

// asMapping coerces a decoded YAML value into a string-keyed map. yaml.v2
// hands nested mappings back as map[interface{}]interface{}.
func asMapping(v interface{}, field string, expected string) (map[string]interface{}, error) {
	raw, ok := v.(map[interface{}]interface{})
	if !ok {
		return nil, &ValidationError{Field: field, Expected: expected}
	}
	m := make(map[string]interface{}, len(raw))
	for k, val := range raw {
		s, ok := k.(string)
		if !ok {
			return nil, &ValidationError{Field: field, Expected: expected}
		}
		m[s] = val
	}
	return m, nil
}

func asString(v interface{}, field string) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", &ValidationError{Field: field, Expected: "a string"}
	}
	return s, nil
}
