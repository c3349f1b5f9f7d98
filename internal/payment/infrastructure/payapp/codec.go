package payapp

import (
	"net/url"
	"strings"
)

// Fields is one gateway message: a flat string to string mapping carried as
// application/x-www-form-urlencoded in both directions.
type Fields map[string]string

func (f Fields) Get(key string) string { return f[key] }

// Encode renders f in key order. Empty values are sent as empty parameters.
func Encode(f Fields) string {
	v := make(url.Values, len(f))
	for k, val := range f {
		v.Set(k, val)
	}
	return v.Encode()
}

// Decode parses a gateway response body. Repeated keys keep the first value.
func Decode(body []byte) (Fields, error) {
	v, err := url.ParseQuery(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, err
	}
	f := make(Fields, len(v))
	for k, vals := range v {
		if len(vals) > 0 {
			f[k] = vals[0]
		}
	}
	return f, nil
}

// unescapeURL undoes the extra percent-encoding the gateway applies to
// returned URLs. Values that fail to decode are returned unchanged.
func unescapeURL(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	out, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return out
}
