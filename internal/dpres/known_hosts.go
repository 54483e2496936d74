package dpres

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// knownHostsMu serializes writes to the known_hosts file; TOFU appends
// happen only on first connection to a new DPRES endpoint, but the
// reconciler and any concurrent CLI invocation must not race on it.
var knownHostsMu sync.Mutex

// newTOFUHostKeyCallback implements a trust-on-first-use host key policy
// against knownHostsFile: a known host with a matching key is accepted, a
// known host with a changed key is rejected (possible MITM), and an
// unknown host is accepted and appended. Grounded directly on
// warpdl-warpdl's pkg/warplib/known_hosts.go, adapted from its download
// client onto the DPRES SFTP connection.
func newTOFUHostKeyCallback(knownHostsFile string) ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		if err := os.MkdirAll(filepath.Dir(knownHostsFile), 0o700); err != nil {
			return fmt.Errorf("dpres: create known_hosts directory: %w", err)
		}

		if _, err := os.Stat(knownHostsFile); err == nil {
			cb, loadErr := knownhosts.New(knownHostsFile)
			if loadErr != nil {
				return fmt.Errorf("dpres: load known_hosts: %w", loadErr)
			}
			err := cb(hostname, remote, key)
			if err == nil {
				return nil
			}
			var keyErr *knownhosts.KeyError
			if errors.As(err, &keyErr) {
				if len(keyErr.Want) > 0 {
					fp := ssh.FingerprintSHA256(key)
					return fmt.Errorf(
						"dpres: host key changed for %s (got %s); if expected, remove the old entry from %s",
						hostname, fp, knownHostsFile,
					)
				}
				// len(keyErr.Want) == 0: unknown host, fall through to TOFU accept.
			} else {
				return err
			}
		}

		return appendKnownHost(knownHostsFile, hostname, key)
	}
}

func appendKnownHost(path, hostname string, key ssh.PublicKey) error {
	knownHostsMu.Lock()
	defer knownHostsMu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("dpres: write known_hosts: %w", err)
	}
	defer f.Close()

	normalized := knownhosts.Normalize(hostname)
	line := knownhosts.Line([]string{normalized}, key)
	_, err = f.WriteString(line + "\n")
	return err
}
