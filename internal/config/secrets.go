package config

import (
	"net/url"
	"strings"
)

// RedactedConfig returns a copy of cfg with sensitive fields replaced by the
// redaction placeholder "***". Use this when logging or printing the active
// configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Wallet.PrivateKey)
	redact(&out.Wallet.KeyPassword)
	redact(&out.Supabase.DSN)
	redact(&out.Supabase.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Wallet RPC URLs often embed provider keys.
	redactURL(&out.Chain.RPCURL)
	redactURL(&out.Chain.WalletRPCURL)
	if strings.Contains(out.Redis.Addr, "@") {
		redactURL(&out.Redis.Addr)
	}

	out.Chain.IncompatibleConnectors = cloneSlice(cfg.Chain.IncompatibleConnectors)
	out.Watch.MarketsV1 = cloneSlice(cfg.Watch.MarketsV1)
	out.Watch.MarketsV2 = cloneSlice(cfg.Watch.MarketsV2)
	out.Server.CORSOrigins = cloneSlice(cfg.Server.CORSOrigins)
	out.Notify.Events = cloneSlice(cfg.Notify.Events)
	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

// redactURL keeps scheme and host but drops path and query.
func redactURL(s *string) {
	u, err := url.Parse(*s)
	if err != nil || u.Host == "" {
		redact(s)
		return
	}
	if u.Path == "" && u.RawQuery == "" && u.User == nil {
		return
	}
	*s = u.Scheme + "://" + u.Host + "/" + redacted
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}
