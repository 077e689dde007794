package cluster

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ClusterInfo is the serializable record listing servers by name and
// endpoint that Galvan hands to test clients so they know how to connect.
// Order is not preserved across an Encode/Decode round-trip.
type ClusterInfo struct {
	Servers map[string]Endpoint
}

// NewClusterInfo builds an empty ClusterInfo ready for AddServer calls.
func NewClusterInfo() *ClusterInfo {
	return &ClusterInfo{Servers: make(map[string]Endpoint)}
}

// AddServer records one server's connection endpoint.
func (c *ClusterInfo) AddServer(name string, ep Endpoint) {
	c.Servers[name] = ep
}

// delimiters reserved by the loose encoding.
const (
	tokenSep = ";"
	kvSep    = "="
	hostSep  = ":"
)

// Encode produces the ";"-delimited concatenation of per-server tokens
// described in spec.md §6: "name=host:port" joined by ";". Suitable only
// when no server name or host contains ';', '=', or ':' — use EncodeStrict
// otherwise.
func (c *ClusterInfo) Encode() string {
	tokens := make([]string, 0, len(c.Servers))
	for name, ep := range c.Servers {
		tokens = append(tokens, fmt.Sprintf("%s%s%s%s%d", name, kvSep, ep.Host, hostSep, ep.Port))
	}
	return strings.Join(tokens, tokenSep)
}

// DecodeClusterInfo parses the loose encoding produced by Encode. An empty
// string decodes to an empty ClusterInfo.
func DecodeClusterInfo(s string) (*ClusterInfo, error) {
	c := NewClusterInfo()
	if s == "" {
		return c, nil
	}
	for _, token := range strings.Split(s, tokenSep) {
		name, rest, ok := strings.Cut(token, kvSep)
		if !ok {
			return nil, errors.Errorf("cluster: malformed token %q: missing %q", token, kvSep)
		}
		host, portStr, ok := strings.Cut(rest, hostSep)
		if !ok {
			return nil, errors.Errorf("cluster: malformed token %q: missing %q", token, hostSep)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, errors.Wrapf(err, "cluster: malformed port in token %q", token)
		}
		c.Servers[name] = Endpoint{Host: host, Port: port}
	}
	return c, nil
}

// EncodeStrict is the stricter encoding spec.md §6 allows implementations
// to substitute "provided both sides agree": a net/url query string, one
// name=host:port pair per value, safe for names or hosts that contain the
// loose encoding's reserved delimiters.
func (c *ClusterInfo) EncodeStrict() string {
	v := url.Values{}
	for name, ep := range c.Servers {
		v.Add(name, fmt.Sprintf("%s%s%d", ep.Host, hostSep, ep.Port))
	}
	return v.Encode()
}

// DecodeStrict parses the EncodeStrict form.
func DecodeStrict(s string) (*ClusterInfo, error) {
	v, err := url.ParseQuery(s)
	if err != nil {
		return nil, errors.Wrap(err, "cluster: malformed strict descriptor")
	}
	c := NewClusterInfo()
	for name, vals := range v {
		if len(vals) == 0 {
			continue
		}
		// The port never contains ':', so split at the last one: the host
		// may contain the delimiter itself.
		i := strings.LastIndex(vals[0], hostSep)
		if i < 0 {
			return nil, errors.Errorf("cluster: malformed strict value %q for %q", vals[0], name)
		}
		host, portStr := vals[0][:i], vals[0][i+1:]
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, errors.Wrapf(err, "cluster: malformed strict port for %q", name)
		}
		c.Servers[name] = Endpoint{Host: host, Port: port}
	}
	return c, nil
}
