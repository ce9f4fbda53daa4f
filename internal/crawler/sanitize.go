package crawler

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

const sessionIDMarker = ";jsessionid="

var (
	schemePattern  = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.\-]*:`)
	baseURLPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.\-]*://[^/]*`)
)

// CanonicalURL is the identity of a crawled resource: a fragment-free URL without
// query string plus the query parameters as an unordered set
type CanonicalURL struct {
	Path   string
	Params map[string]string
}

// Key returns the identity string; equal keys mean equal CanonicalURLs
func (u CanonicalURL) Key() string {
	if len(u.Params) == 0 {
		return u.Path
	}
	keys := make([]string, 0, len(u.Params))
	for k := range u.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(u.Path)
	for i, k := range keys {
		if i == 0 {
			sb.WriteByte('?')
		} else {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(k))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(u.Params[k]))
	}
	return sb.String()
}

// String returns the URL to request
func (u CanonicalURL) String() string {
	return u.Key()
}

// Equal reports whether both URLs have the same identity
func (u CanonicalURL) Equal(other CanonicalURL) bool {
	return u.Key() == other.Key()
}

// Sanitize resolves href against base and canonicalizes it. It never fails:
// undecodable or unparsable input degrades to best-effort string handling.
func Sanitize(base, href string) CanonicalURL {
	if decoded, err := url.QueryUnescape(href); err == nil {
		href = decoded
	}
	if i := strings.IndexByte(href, '#'); i >= 0 {
		href = href[:i]
	}
	if i := strings.Index(href, sessionIDMarker); i >= 0 {
		href = href[:i]
	}

	params := make(map[string]string)
	if path, query, found := strings.Cut(href, "?"); found {
		href = path
		for _, pair := range strings.Split(query, "&") {
			if pair == "" {
				continue
			}
			key, value, _ := strings.Cut(pair, "=")
			params[key] = value
		}
	}

	return CanonicalURL{
		Path:   normalize(resolve(base, href)),
		Params: params,
	}
}

// resolve makes href absolute using base
func resolve(base, href string) string {
	switch {
	case schemePattern.MatchString(href):
		return href
	case strings.HasPrefix(href, "//"):
		if scheme := schemePattern.FindString(base); scheme != "" {
			return scheme + href
		}
		return href
	case strings.HasPrefix(href, "/"):
		if origin := baseURLPattern.FindString(base); origin != "" {
			return origin + href
		}
		return href
	}
	return baseDirectory(base) + href
}

// baseDirectory returns base up to and including its last "/", or base plus a
// trailing "/" when it has no path
func baseDirectory(base string) string {
	if strings.HasSuffix(base, "/") {
		return base
	}
	rest := base
	if i := strings.Index(base, "://"); i >= 0 {
		rest = base[i+3:]
	}
	if strings.Index(rest, "/") > 0 {
		return base[:strings.LastIndex(base, "/")+1]
	}
	return base + "/"
}

// normalize lowercases scheme and host and removes dot segments from the path.
// Strings that do not parse as absolute hierarchical URLs are returned unchanged.
func normalize(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Opaque != "" {
		return raw
	}
	i := strings.Index(raw, "://")
	if i < 0 {
		return raw
	}
	origin, path := raw, ""
	if j := strings.IndexByte(raw[i+3:], '/'); j >= 0 {
		origin, path = raw[:i+3+j], raw[i+3+j:]
	}
	return strings.ToLower(origin) + removeDotSegments(path)
}

func removeDotSegments(path string) string {
	if !strings.Contains(path, ".") {
		return path
	}
	segments := strings.Split(path, "/")
	out := make([]string, 0, len(segments))
	last := len(segments) - 1
	for i, seg := range segments {
		switch seg {
		case ".":
			if i == last {
				out = append(out, "")
			}
		case "..":
			if len(out) > 1 {
				out = out[:len(out)-1]
			}
			if i == last {
				out = append(out, "")
			}
		default:
			out = append(out, seg)
		}
	}
	return strings.Join(out, "/")
}
