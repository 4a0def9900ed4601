package telephony

import (
	"log/slog"
	"sort"
)

// Supported returns the provider type tags the factory accepts.
func Supported() []string {
	tags := []string{"twilio", "telnyx", "bandwidth", "sns", "log", "capture"}
	sort.Strings(tags)
	return tags
}

// New constructs the adapter for providerType. Unknown types fail
// immediately with a descriptive error, before any network activity.
// Adding a vendor means adding one case here and one adapter file.
func New(providerType string, cfg Config, logger *slog.Logger) (Provider, error) {
	switch providerType {
	case "twilio":
		return NewTwilioProvider(cfg), nil
	case "telnyx":
		return NewTelnyxProvider(cfg), nil
	case "bandwidth":
		return NewBandwidthProvider(cfg), nil
	case "sns":
		publisher, err := newAWSSNSPublisher(cfg.Region)
		if err != nil {
			return nil, wrapError("sns", KindConfig, err, "loading AWS config")
		}
		return NewSNSProvider(publisher), nil
	case "log":
		return NewLogProvider(logger), nil
	case "capture":
		return NewCaptureProvider(), nil
	default:
		return nil, newError("", KindConfig, "unsupported phone provider type %q (supported: %v)", providerType, Supported())
	}
}
