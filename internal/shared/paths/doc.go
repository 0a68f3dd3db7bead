// Package paths provides standardized process file locations.
//
// # Layout
//
//	<executable dir>/
//	  ├── fs-proxy       (binary)
//	  ├── fs-proxy.pid   (written while serving)
//	  └── .env           (optional configuration)
//
// # Usage
//
//	pidFile := paths.PIDFile()
//	for _, f := range paths.EnvFiles() {
//	    // load f if present
//	}
package paths
