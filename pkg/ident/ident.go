// Package ident derives a stable identity for this worker process,
// used as the owner token on distributed execution leases.
package ident

import (
	"fmt"
	"os"

	"github.com/denisbrodbeck/machineid"
)

// WorkerID returns a host-stable, process-unique identifier. When the
// machine id is unavailable (containers without /etc/machine-id) it
// falls back to the hostname.
func WorkerID() string {
	id, err := machineid.ID()
	if err != nil {
		id, _ = os.Hostname()
	}
	return fmt.Sprintf("%s-%d", id, os.Getpid())
}
