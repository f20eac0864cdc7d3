package services

import (
	"context"
	"net/url"
	"strings"
)

const maxLogoURLLength = 512

// LogoValidator decides whether a logo URL may be stored on a group.
type LogoValidator interface {
	ValidateLogo(ctx context.Context, rawURL string) error
}

// HostAllowList accepts https URLs whose host is on the list. An empty list
// accepts any https host.
type HostAllowList struct {
	hosts map[string]struct{}
}

func NewHostAllowList(hosts []string) *HostAllowList {
	set := make(map[string]struct{}, len(hosts))
	for _, host := range hosts {
		host = strings.ToLower(strings.TrimSpace(host))
		if host != "" {
			set[host] = struct{}{}
		}
	}
	return &HostAllowList{hosts: set}
}

func (a *HostAllowList) ValidateLogo(_ context.Context, rawURL string) error {
	if len(rawURL) > maxLogoURLLength {
		return ErrInvalidLogo.Withf("logo url is too long")
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "https" || u.Host == "" || u.User != nil {
		return ErrInvalidLogo.Withf("logo url must be an https url")
	}
	if len(a.hosts) == 0 {
		return nil
	}
	if _, ok := a.hosts[strings.ToLower(u.Hostname())]; !ok {
		return ErrInvalidLogo.Withf("logo host %s is not allowed", u.Hostname())
	}
	return nil
}
