package config

// ConfigDiff describes what changed between two configs and whether the
// change can be applied without restarting the server.
type ConfigDiff struct {
	// CorrectionChanged is true when any correction engine parameter
	// changed. Engine parameters are hot-reloadable: the next request
	// simply builds its corrector from the new values.
	CorrectionChanged bool

	LogLevelChanged bool
	NewLogLevel     LogLevel

	// AuthKeysChanged is true when the static key set changed. Only
	// meaningful for deployments without a database.
	AuthKeysChanged bool

	// RequiresRestart is true when a changed field (listen address, TLS,
	// database DSN, auth.enabled) only takes effect on restart.
	RequiresRestart bool
}

// Changed reports whether the diff contains any change at all.
func (d ConfigDiff) Changed() bool {
	return d.CorrectionChanged || d.LogLevelChanged || d.AuthKeysChanged || d.RequiresRestart
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Correction != new.Correction {
		d.CorrectionChanged = true
	}

	if !staticKeysEqual(old.Auth.Keys, new.Auth.Keys) {
		d.AuthKeysChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		!tlsEqual(old.Server.TLS, new.Server.TLS) ||
		old.Database.DSN != new.Database.DSN ||
		old.Auth.Enabled != new.Auth.Enabled {
		d.RequiresRestart = true
	}

	return d
}

func staticKeysEqual(a, b []StaticKey) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
