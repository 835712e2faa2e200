// Package enrich derives device and geo attributes for new sessions from
// the request's user agent and client IP.
package enrich

import (
	"net"

	"github.com/mssola/useragent"
	"github.com/oschwald/geoip2-golang"

	"github.com/funnelsight/tracker/internal/domain"
)

type Enricher struct {
	geoIP *geoip2.Reader
}

// New opens the GeoIP database when a path is configured. A missing or
// unreadable database just disables geo fields.
func New(geoIPPath string) *Enricher {
	var reader *geoip2.Reader
	if geoIPPath != "" {
		reader, _ = geoip2.Open(geoIPPath)
	}
	return &Enricher{geoIP: reader}
}

func (e *Enricher) Lookup(userAgentString, clientIP string) domain.Device {
	var dev domain.Device

	if userAgentString != "" {
		ua := useragent.New(userAgentString)
		dev.Browser, dev.BrowserVersion = ua.Browser()
		dev.OS = ua.OS()
		dev.DeviceType = deviceType(ua)
	}

	if e.geoIP != nil && clientIP != "" {
		if ip := net.ParseIP(clientIP); ip != nil {
			if record, err := e.geoIP.City(ip); err == nil {
				dev.Country = record.Country.IsoCode
				if name, ok := record.City.Names["en"]; ok {
					dev.City = name
				}
			}
		}
	}

	return dev
}

func deviceType(ua *useragent.UserAgent) string {
	if ua.Mobile() {
		return "mobile"
	}
	if ua.Bot() {
		return "bot"
	}
	return "desktop"
}

func (e *Enricher) Close() {
	if e.geoIP != nil {
		e.geoIP.Close()
	}
}
