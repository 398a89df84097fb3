package config

import (
	"net/url"
	"strings"
)

const redacted = "***"

// RedactedConfig returns a deep-enough copy of cfg that is safe to log.
// Plain secrets become "***". Connection strings keep their scheme and host
// so a misconfigured endpoint is still visible, but lose credentials and
// query strings.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Wallet.PrivateKey)
	redact(&out.Wallet.KeyPassword)
	redact(&out.Supabase.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Agent.PriceAPIKey)

	out.Supabase.DSN = redactURL(cfg.Supabase.DSN)
	out.Redis.Addr = redactURL(cfg.Redis.Addr)
	out.Chain.RPCURL = redactURL(cfg.Chain.RPCURL)
	// Discord embeds the webhook secret in the path.
	out.Notify.DiscordWebhookURL = redactURL(cfg.Notify.DiscordWebhookURL)
	if u, err := url.Parse(out.Notify.DiscordWebhookURL); err == nil && u.Path != "" {
		u.Path = "/" + redacted
		out.Notify.DiscordWebhookURL = u.String()
	}

	out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	out.Indexer.WatchAddresses = append([]string(nil), cfg.Indexer.WatchAddresses...)
	out.Agent.NewsKeywords = append([]string(nil), cfg.Agent.NewsKeywords...)
	out.Agent.Fixtures = append([]Fixture(nil), cfg.Agent.Fixtures...)
	out.Bridge.Sources = make([]BridgeChain, len(cfg.Bridge.Sources))
	for i, src := range cfg.Bridge.Sources {
		src.RPCURL = redactURL(src.RPCURL)
		out.Bridge.Sources[i] = src
	}
	return out
}

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

// redactURL strips the password and query string from a URL. Values that are
// not URLs (a bare host:port, say) pass through unchanged.
func redactURL(raw string) string {
	if raw == "" || !strings.Contains(raw, "://") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return redacted
	}
	if u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.UserPassword(u.User.Username(), redacted)
		}
	}
	if u.RawQuery != "" {
		u.RawQuery = "redacted"
	}
	return u.String()
}
