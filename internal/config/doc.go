// Package config provides configuration types and loading for qwtimers.
//
// # Configuration File
//
// The proxy reads an optional TOML file layered over built-in defaults:
//
//	listen = ":8080"
//	static_dir = "."
//
//	[upstream]
//	target = "https://app.qilowatt.it"
//	login_path = "/api/user/login"
//	login_timeout = "15s"
//	max_login_body = 1048576
//	max_form_body = 65536
//
//	[routing]
//	mounts = ["/api", "/devices"]
//	protected_prefixes = ["/api/"]
//
//	[diagnostics]
//	log_path = "/tmp/proxy-debug.log"
//	max_size = 10485760
//
// Keys missing from the file keep their default; unknown keys are an error.
// An empty diagnostics.log_path disables the diagnostic file.
//
// # Validation
//
// Validate() checks the target is an https URL (login runs over HTTP/2 with
// TLS), that every path is absolute and that limits are positive. Load
// validates automatically after parsing.
package config
