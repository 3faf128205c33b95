package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/agentops/statuslog/internal/config"
)

// CandidateSource names where a connection target came from, in priority
// order: a local Cloud SQL proxy, the instance's private IP, or its
// public IP.
type CandidateSource string

const (
	SourceProxy     CandidateSource = "proxy"
	SourcePrivateIP CandidateSource = "private-ip"
	SourcePublic    CandidateSource = "public"
)

// Candidate is one fully specified connection target considered during
// endpoint resolution. Candidates exist only while the pool manager is
// establishing a connection; they are never persisted.
type Candidate struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	Source   CandidateSource
}

// URL renders the candidate as a postgres DSN.
func (c Candidate) URL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   c.Addr(),
		Path:   "/" + c.Database,
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr is the host:port pair, bracketing IPv6 hosts.
func (c Candidate) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ResolveCandidates interprets the database configuration into an ordered,
// non-empty list of connection targets. No network I/O happens here.
//
//  1. A configured proxy connection name means a Cloud SQL proxy is
//     expected on loopback; that candidate goes first.
//  2. When private-IP use is enabled and a private IP is set, it comes
//     next.
//  3. The public host is always appended last as the universal fallback.
//
// Duplicates are harmless: the first candidate that answers a probe wins.
func ResolveCandidates(cfg config.DatabaseConfig) []Candidate {
	base := Candidate{
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		Database: cfg.Name,
		SSLMode:  cfg.SSLMode,
	}

	var candidates []Candidate
	if cfg.ProxyConn != "" {
		c := base
		c.Host = "127.0.0.1"
		c.Source = SourceProxy
		candidates = append(candidates, c)
	}
	if cfg.UsePrivateIP && cfg.PrivateIP != "" {
		c := base
		c.Host = cfg.PrivateIP
		c.Source = SourcePrivateIP
		candidates = append(candidates, c)
	}
	c := base
	c.Host = cfg.Host
	c.Source = SourcePublic
	return append(candidates, c)
}
