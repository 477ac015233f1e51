// Package site turns operator input into the identifiers the console API
// understands and normalizes manually supplied URL lists.
package site

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/samber/lo"

	"github.com/JakeFAU/gsc-indexer/internal/indexer"
)

// DomainPrefix marks a domain property identifier.
const DomainPrefix = "sc-domain:"

var cacheKeyReplacer = strings.NewReplacer(
	"http://", "http_",
	"https://", "https_",
	"/", "_",
	":", "_",
)

// ConvertToSiteURL maps a URL to its URL-prefix property (with a trailing
// slash) and anything else to a domain property.
func ConvertToSiteURL(input string) string {
	input = strings.TrimSpace(input)
	if isAbsolute(input) {
		if !strings.HasSuffix(input, "/") {
			input += "/"
		}
		return input
	}
	return DomainPrefix + input
}

// CacheKey returns a filesystem-safe key for a site identifier.
func CacheKey(siteURL string) string {
	return cacheKeyReplacer.Replace(siteURL)
}

// Variants lists the identifiers a credential might hold for input, most
// specific first.
func Variants(input string) []string {
	converted := ConvertToSiteURL(input)
	host := Host(converted)
	if host == "" {
		return []string{converted}
	}
	bare := strings.TrimPrefix(host, "www.")

	variants := []string{
		converted,
		DomainPrefix + bare,
		"https://" + host + "/",
		"http://" + host + "/",
	}
	if bare != host {
		variants = append(variants, "https://"+bare+"/", "http://"+bare+"/")
	} else {
		variants = append(variants, "https://www."+bare+"/", "http://www."+bare+"/")
	}
	return lo.Uniq(variants)
}

// CheckSiteURL returns the first variant of input that the credential can
// access. It fails with indexer.ErrNoSiteAccess when none match.
func CheckSiteURL(ctx context.Context, lister indexer.SiteLister, input string) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", indexer.ErrMissingInput
	}
	sites, err := lister.ListSites(ctx)
	if err != nil {
		return "", fmt.Errorf("list sites: %w", err)
	}
	accessible := lo.SliceToMap(sites, func(s string) (string, struct{}) {
		return s, struct{}{}
	})
	for _, candidate := range Variants(input) {
		if _, ok := accessible[candidate]; ok {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s", indexer.ErrNoSiteAccess, input)
}

// CheckCustomURLs resolves each manual entry against the site's protocol and
// domain. Absolute URLs are kept, a leading-slash path or a bare path is
// joined to the domain, and an entry starting with the domain gets the
// protocol. Duplicates are dropped, keeping the first occurrence.
func CheckCustomURLs(siteURL string, urls []string) []string {
	protocol, domain := origin(siteURL)
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		entry := strings.TrimSpace(raw)
		switch {
		case entry == "":
			continue
		case isAbsolute(entry):
			out = append(out, entry)
		case strings.HasPrefix(entry, "/"):
			out = append(out, protocol+"://"+domain+entry)
		case domain != "" && strings.HasPrefix(entry, domain):
			out = append(out, protocol+"://"+entry)
		default:
			out = append(out, protocol+"://"+domain+"/"+entry)
		}
	}
	return lo.Uniq(out)
}

// Host returns the hostname of a site identifier.
func Host(siteURL string) string {
	_, domain := origin(siteURL)
	return domain
}

func origin(siteURL string) (protocol, domain string) {
	if strings.HasPrefix(siteURL, DomainPrefix) {
		return "https", strings.TrimSuffix(strings.TrimPrefix(siteURL, DomainPrefix), "/")
	}
	u, err := url.Parse(siteURL)
	if err != nil || u.Host == "" {
		return "https", strings.Trim(siteURL, "/")
	}
	return u.Scheme, u.Host
}

func isAbsolute(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
