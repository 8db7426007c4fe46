package coordinator

import "log"

// logf prefixes coordinator log lines.
func logf(format string, args ...any) {
	log.Printf("coordinator: "+format, args...)
}
