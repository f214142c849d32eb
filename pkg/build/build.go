package build

// Tag is overridden at link time via -ldflags.
var Tag = "dev"
