package version

// Version is overridden at build time via
// -ldflags "-X github.com/vjelic/rocm-jax-glog-fork/version.Version=...".
var Version = "0.0.0"
