package version

// Build metadata, injected with -ldflags "-X fuel-price-tracker/internal/version.Version=...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)
