package version

// Build identity, injected via -ldflags at release time.
var (
	Version = ""
	Commit  = ""
)

// String renders the build identity for --version output.
func String() string {
	v := Version
	if v == "" {
		v = "dev"
	}
	if Commit == "" {
		return v
	}
	c := Commit
	if len(c) > 12 {
		c = c[:12]
	}
	return v + " (" + c + ")"
}
