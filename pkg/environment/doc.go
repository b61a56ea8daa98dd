// Package environment names the deployment environment a process runs in and
// carries it through context.Context.
//
// Spooled tasks change behaviour outside production (test recipients are
// written to the console instead of being mailed), so the environment is
// parsed once from configuration with Parse and queried with IsProduction.
// WithContext and FromContext propagate the value to task bodies, and
// LoggerExtractor exposes it to the logger package.
package environment
